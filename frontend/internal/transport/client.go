// Package transport is the HTTP client every backend call goes through. It is
// bound to a base URL, a timeout and a bearer token source.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itchan-dev/starter/shared/logger"
	"golang.org/x/time/rate"
)

const (
	// RequestIDHeader correlates frontend and backend logs.
	RequestIDHeader = "X-Request-ID"

	defaultMaxBodySize = 10 << 20
)

// ErrResponseTooLarge is returned for bodies over the client's size limit.
var ErrResponseTooLarge = errors.New("transport: response too large")

// TokenSource returns the current session token, or "" when there is none.
type TokenSource func() string

// TokenPolicy decides when the token source is consulted.
type TokenPolicy int

const (
	// TokenPerRequest reads the token source on every request.
	TokenPerRequest TokenPolicy = iota
	// TokenFixed reads it once when the client is constructed (or bound).
	TokenFixed
)

func ParseTokenPolicy(s string) (TokenPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "per_request":
		return TokenPerRequest, nil
	case "fixed":
		return TokenFixed, nil
	default:
		return TokenPerRequest, fmt.Errorf("transport: unknown token policy %q", s)
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithTimeout sets the fixed client timeout. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHeaders assigns default headers added to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
	}
}

func WithTokenSource(src TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = src
	}
}

func WithTokenPolicy(p TokenPolicy) Option {
	return func(c *Client) {
		c.tokenPolicy = p
	}
}

// WithFixtures serves fixture requests from fsys instead of the network.
func WithFixtures(fsys fs.FS) Option {
	return func(c *Client) {
		c.fixtures = fsys
	}
}

// WithRateLimit caps outbound requests. A zero limit disables limiting.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Client) {
		if limit <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithMaxBodySize caps the response body size. Larger bodies fail with
// ErrResponseTooLarge.
func WithMaxBodySize(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// Client wraps http.Client with base URL, auth and fixture handling.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	timeout     time.Duration
	headers     http.Header
	tokenSource TokenSource
	tokenPolicy TokenPolicy
	fixedToken  string
	fixtures    fs.FS
	limiter     *rate.Limiter
	maxBodySize int64
	log         *slog.Logger
}

// Request describes a single outbound request.
type Request struct {
	Method  string
	Path    string // relative to the base URL; absolute URLs are used as is
	Query   url.Values
	Body    any // []byte and io.Reader are sent verbatim, anything else as JSON
	Header  http.Header
	Timeout time.Duration // per-call deadline on top of the client timeout
	Fixture bool
}

// Response is a fully read 2xx response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
}

// New creates a Client for the provided base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("transport: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid base URL: %w", err)
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	c := &Client{
		baseURL:     parsed,
		headers:     make(http.Header),
		maxBodySize: defaultMaxBodySize,
		log:         logger.Component("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	} else if c.timeout > 0 {
		clone := *c.httpClient
		clone.Timeout = c.timeout
		c.httpClient = &clone
	}
	c.snapshotToken()
	return c, nil
}

// Bind returns a copy of c reading tokens from src. The copy shares the
// connection pool and rate limiter. Under TokenFixed the token is captured now.
func (c *Client) Bind(src TokenSource) *Client {
	clone := *c
	clone.tokenSource = src
	clone.fixedToken = ""
	clone.snapshotToken()
	return &clone
}

func (c *Client) snapshotToken() {
	if c.tokenPolicy == TokenFixed && c.tokenSource != nil {
		c.fixedToken = c.tokenSource()
	}
}

func (c *Client) token() string {
	if c.tokenPolicy == TokenFixed {
		return c.fixedToken
	}
	if c.tokenSource == nil {
		return ""
	}
	return c.tokenSource()
}

// Do executes req. Non-2xx responses are returned as *HTTPError; network
// failures are wrapped errors. Do never retries.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("transport: request is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	if req.Fixture && c.fixtures != nil {
		return c.readFixture(ctx, req.Path)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	if req.Fixture {
		method = http.MethodGet
	}

	fullURL, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("transport: rate limit wait: %w", err)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create API request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header = cloneHeader(c.headers)
	for k, values := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if token := c.token(); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	httpReq.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.Warn("request failed", "method", method, "url", fullURL, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("backend unavailable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("transport: read response body: %w", err)
	}
	if int64(len(data)) > c.maxBodySize {
		c.log.Warn("response too large", "method", method, "url", fullURL, "request_id", requestID, "limit", c.maxBodySize)
		return nil, fmt.Errorf("%w: %s %s exceeds %d bytes", ErrResponseTooLarge, method, req.Path, c.maxBodySize)
	}

	c.log.Debug("request done",
		"method", method,
		"url", fullURL,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newHTTPError(resp.StatusCode, resp.Status, data, resp.Header)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
		RequestID:  requestID,
	}, nil
}

func (c *Client) buildURL(path string, q url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("transport: invalid path %q: %w", path, err)
	}
	var full *url.URL
	if ref.IsAbs() {
		full = ref
	} else {
		ref.Path = strings.TrimPrefix(ref.Path, "/")
		full = c.baseURL.ResolveReference(ref)
	}
	if len(q) > 0 {
		merged := full.Query()
		for k, values := range q {
			for _, v := range values {
				merged.Add(k, v)
			}
		}
		full.RawQuery = merged.Encode()
	}
	return full.String(), nil
}

func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return bytes.NewReader(b), "application/json", nil
	case io.Reader:
		return b, "", nil
	default:
		buf := &bytes.Buffer{}
		enc := json.NewEncoder(buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(b); err != nil {
			return nil, "", fmt.Errorf("transport: encode request body: %w", err)
		}
		return bytes.NewReader(bytes.TrimRight(buf.Bytes(), "\n")), "application/json", nil
	}
}

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		vCopy := make([]string, len(values))
		copy(vCopy, values)
		dst[k] = vCopy
	}
	return dst
}
