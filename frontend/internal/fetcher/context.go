package fetcher

import "context"

type contextKey struct{}

// NewContext returns ctx carrying f.
func NewContext(ctx context.Context, f *Fetcher) context.Context {
	return context.WithValue(ctx, contextKey{}, f)
}

// FromContext returns the Fetcher stored in ctx, if any.
func FromContext(ctx context.Context) (*Fetcher, bool) {
	f, ok := ctx.Value(contextKey{}).(*Fetcher)
	return f, ok && f != nil
}
