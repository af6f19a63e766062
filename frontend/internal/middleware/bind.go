package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/itchan-dev/starter/frontend/internal/effects"
	"github.com/itchan-dev/starter/frontend/internal/fetcher"
	"github.com/itchan-dev/starter/frontend/internal/query"
	"github.com/itchan-dev/starter/frontend/internal/session"
	"github.com/itchan-dev/starter/frontend/internal/transport"
)

// AnonymousScope is the cache scope of requests without a session.
const AnonymousScope = "anonymous"

var scopeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("itchan-starter/query-scope"))

// Scope derives the cache scope of a session token. Tokens never end up in
// cache keys or logs, only their hash.
func Scope(token string) string {
	if token == "" {
		return AnonymousScope
	}
	return uuid.NewSHA1(scopeNamespace, []byte(token)).String()
}

// Binder attaches a request-bound Fetcher to every request: its transport
// sends the request's session token, a 401 clears that session and redirects
// through the request's Effects.
type Binder struct {
	fetcher   *fetcher.Fetcher
	transport *transport.Client
}

func NewBinder(f *fetcher.Fetcher, t *transport.Client) *Binder {
	return &Binder{fetcher: f, transport: t}
}

func (b *Binder) Bind(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		eff := effects.New()
		sess := session.FromRequest(r, eff)
		f := b.fetcher.With(
			fetcher.WithTransport(b.transport.Bind(sess.Token)),
			fetcher.WithSession(sess),
			fetcher.WithNavigator(eff),
		)

		ctx := effects.NewContext(r.Context(), eff)
		ctx = fetcher.NewContext(ctx, f)
		ctx = query.WithScope(ctx, Scope(sess.Token()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
