package fetcher

import (
	"net/http"
	"net/url"
	"time"
)

// Options is the merged, read-only descriptor of one dispatch.
type Options struct {
	URL             string
	Method          string
	Params          url.Values
	Body            any
	Header          http.Header
	Timeout         time.Duration // 0 means no per-call timeout
	Mock            bool
	JSONMockup      string // fixture path, e.g. "boards/list.json"
	Delay           time.Duration
	ShowErrorDialog bool
}

// RequestOption overrides one default of a dispatch.
type RequestOption func(*Options)

func defaultOptions(url string) Options {
	return Options{
		URL:             url,
		Method:          http.MethodGet,
		Mock:            true,
		ShowErrorDialog: true,
	}
}

func buildOptions(url string, opts []RequestOption) Options {
	o := defaultOptions(url)
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	// Callers keep their values; the dispatch works on its own copies.
	o.Params = cloneValues(o.Params)
	o.Header = o.Header.Clone()
	return o
}

func WithMethod(method string) RequestOption {
	return func(o *Options) {
		if method != "" {
			o.Method = method
		}
	}
}

func WithParams(params url.Values) RequestOption {
	return func(o *Options) {
		o.Params = params
	}
}

// WithParam adds one query parameter.
func WithParam(key, value string) RequestOption {
	return func(o *Options) {
		if o.Params == nil {
			o.Params = url.Values{}
		}
		o.Params.Add(key, value)
	}
}

func WithBody(body any) RequestOption {
	return func(o *Options) {
		o.Body = body
	}
}

func WithHeader(key, value string) RequestOption {
	return func(o *Options) {
		if o.Header == nil {
			o.Header = http.Header{}
		}
		o.Header.Set(key, value)
	}
}

func WithTimeout(d time.Duration) RequestOption {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithMock toggles fixture use for this call. Mocking is on by default but only
// ever applies in development with a fixture path set.
func WithMock(enabled bool) RequestOption {
	return func(o *Options) {
		o.Mock = enabled
	}
}

func WithJSONMockup(path string) RequestOption {
	return func(o *Options) {
		o.JSONMockup = path
	}
}

// WithDelay postpones the call by d, simulating network latency.
func WithDelay(d time.Duration) RequestOption {
	return func(o *Options) {
		if d > 0 {
			o.Delay = d
		}
	}
}

// WithErrorDialog controls whether a failure opens the error dialog.
func WithErrorDialog(show bool) RequestOption {
	return func(o *Options) {
		o.ShowErrorDialog = show
	}
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, values := range v {
		out[k] = append([]string(nil), values...)
	}
	return out
}
