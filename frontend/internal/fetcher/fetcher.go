// Package fetcher dispatches one logical backend request: it picks fixture or
// live transport, unwraps the response envelope and turns every failure into
// a *errors.ServiceError, ending the session on 401 and opening the error
// dialog unless the caller opted out.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/itchan-dev/starter/frontend/internal/dialog"
	"github.com/itchan-dev/starter/frontend/internal/transport"
	"github.com/itchan-dev/starter/shared/config"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/itchan-dev/starter/shared/logger"
	"github.com/tidwall/gjson"
)

// DefaultLoginPath is where an expired session is sent.
const DefaultLoginPath = "/login"

// Transport executes requests. *transport.Client implements it.
type Transport interface {
	Do(ctx context.Context, req *transport.Request) (*transport.Response, error)
}

// SessionClearer ends the current session.
type SessionClearer interface {
	Clear()
}

// Navigator moves the user to another route.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Fallback holds the texts used when a failure carries none.
type Fallback struct {
	Title   string
	Message string
}

var defaultFallback = Fallback{
	Title:   "Error",
	Message: "Something went wrong. Please try again later.",
}

type nopSession struct{}

func (nopSession) Clear() {}

type nopNavigator struct{}

func (nopNavigator) Navigate(string) {}

// Fetcher is safe for concurrent use; in-flight dispatches share nothing but
// the session, which is only ever cleared.
type Fetcher struct {
	transport Transport
	mode      config.Mode
	session   SessionClearer
	navigator Navigator
	presenter dialog.ErrorPresenter
	loginPath string
	fallback  Fallback
	log       *slog.Logger
	metrics   *Metrics
	mockDelay time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

func WithTransport(t Transport) Option {
	return func(f *Fetcher) {
		if t != nil {
			f.transport = t
		}
	}
}

func WithMode(mode config.Mode) Option {
	return func(f *Fetcher) {
		f.mode = mode
	}
}

func WithSession(s SessionClearer) Option {
	return func(f *Fetcher) {
		if s != nil {
			f.session = s
		}
	}
}

func WithNavigator(n Navigator) Option {
	return func(f *Fetcher) {
		if n != nil {
			f.navigator = n
		}
	}
}

func WithPresenter(p dialog.ErrorPresenter) Option {
	return func(f *Fetcher) {
		if p != nil {
			f.presenter = p
		}
	}
}

func WithLoginPath(path string) Option {
	return func(f *Fetcher) {
		if path != "" {
			f.loginPath = path
		}
	}
}

// WithFallback overrides the fallback texts; empty fields keep the defaults.
func WithFallback(fb Fallback) Option {
	return func(f *Fetcher) {
		if fb.Title != "" {
			f.fallback.Title = fb.Title
		}
		if fb.Message != "" {
			f.fallback.Message = fb.Message
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// WithMockDelay delays every fixture-served call that sets no delay of its
// own, so development pages show their loading states.
func WithMockDelay(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.mockDelay = d
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(f *Fetcher) {
		f.metrics = m
	}
}

// New creates a Fetcher on top of t. Without options it runs in production
// mode with no session, navigator or dialog attached.
func New(t Transport, opts ...Option) *Fetcher {
	f := &Fetcher{
		transport: t,
		mode:      config.ModeProduction,
		session:   nopSession{},
		navigator: nopNavigator{},
		presenter: dialog.Nop{},
		loginPath: DefaultLoginPath,
		fallback:  defaultFallback,
		log:       logger.Component("fetcher"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// With returns a copy of f with opts applied. The frontend uses it to bind a
// shared Fetcher to one incoming request.
func (f *Fetcher) With(opts ...Option) *Fetcher {
	clone := *f
	for _, opt := range opts {
		opt(&clone)
	}
	return &clone
}

// Mode returns the mode the fetcher resolves fixtures for.
func (f *Fetcher) Mode() config.Mode {
	return f.mode
}

// Fetch dispatches a request and decodes the envelope's data field into T.
func Fetch[T any](ctx context.Context, f *Fetcher, url string, opts ...RequestOption) (T, error) {
	var out T
	raw, err := Raw(ctx, f, url, opts...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		o := buildOptions(url, opts)
		return out, f.fail(ctx, o, fmt.Errorf("decode response data: %w", err))
	}
	return out, nil
}

// Raw dispatches a request and returns the envelope's data field untouched.
// A response without data yields JSON null.
func Raw(ctx context.Context, f *Fetcher, url string, opts ...RequestOption) (json.RawMessage, error) {
	o := buildOptions(url, opts)
	body, err := f.dispatch(ctx, o)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return json.RawMessage("null"), nil
	}
	if !gjson.ValidBytes(body) {
		return nil, f.fail(ctx, o, errors.New("response body is not valid JSON"))
	}
	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(data.Raw), nil
}

// Result is the outcome of an asynchronous Fetch.
type Result[T any] struct {
	Data T
	Err  error
}

// Go runs Fetch in its own goroutine. The channel receives exactly one value.
func Go[T any](ctx context.Context, f *Fetcher, url string, opts ...RequestOption) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		data, err := Fetch[T](ctx, f, url, opts...)
		ch <- Result[T]{Data: data, Err: err}
	}()
	return ch
}

// dispatch performs the single outbound call and returns the raw 2xx body.
func (f *Fetcher) dispatch(ctx context.Context, o Options) ([]byte, error) {
	start := time.Now()
	useMock := ShouldUseMockup(f.mode, o)
	source := sourceLive
	if useMock {
		source = sourceMock
	}

	delay := o.Delay
	if useMock && delay == 0 {
		delay = f.mockDelay
	}
	if err := wait(ctx, delay); err != nil {
		f.metrics.observe(source, start, err)
		return nil, f.fail(ctx, o, err)
	}

	req := &transport.Request{
		Method:  o.Method,
		Path:    o.URL,
		Query:   o.Params,
		Body:    o.Body,
		Header:  o.Header,
		Timeout: o.Timeout,
	}
	if useMock {
		req = &transport.Request{
			Method:  http.MethodGet,
			Path:    o.JSONMockup,
			Timeout: o.Timeout,
			Fixture: true,
		}
	}

	resp, err := f.transport.Do(ctx, req)
	f.metrics.observe(source, start, err)
	if err != nil {
		return nil, f.fail(ctx, o, err)
	}

	f.log.Debug("dispatch succeeded",
		"method", req.Method,
		"url", req.Path,
		"source", source,
		"request_id", resp.RequestID,
		"duration", time.Since(start))
	return resp.Body, nil
}

// wait suspends for d. A zero delay still yields once so every dispatch is
// scheduled the same way.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// fail normalizes err and runs the failure side effects: session clear and
// login redirect on 401, then the error dialog if requested.
func (f *Fetcher) fail(ctx context.Context, o Options, err error) error {
	se := f.normalize(err)

	f.log.Warn("dispatch failed",
		"method", o.Method,
		"url", o.URL,
		"status", se.StatusCode,
		"title", se.Title,
		"error", err)

	if se.StatusCode == http.StatusUnauthorized {
		f.session.Clear()
		f.navigator.Navigate(f.loginPath)
		f.metrics.expired()
		f.log.Info("session expired, redirecting", "login_path", f.loginPath)
	}

	// Nobody is waiting for a dialog on an abandoned call.
	if o.ShowErrorDialog && ctx.Err() == nil {
		f.presenter.OpenErrorDialog(ctx, dialog.Options{
			Title:        se.Title,
			Message:      se.Message,
			Centered:     true,
			Closable:     false,
			MaskClosable: false,
		})
	}
	return se
}

func (f *Fetcher) normalize(err error) *internal_errors.ServiceError {
	se := &internal_errors.ServiceError{
		Title:   f.fallback.Title,
		Message: f.fallback.Message,
		Err:     err,
	}

	var httpErr *transport.HTTPError
	if errors.As(err, &httpErr) {
		se.StatusCode = httpErr.StatusCode
		if httpErr.Status != "" {
			se.Title = httpErr.Status
		}
		if msg := httpErr.Message(); msg != "" {
			se.Message = msg
			return se
		}
	}
	if err != nil && strings.TrimSpace(err.Error()) != "" {
		se.Message = err.Error()
	}
	return se
}
