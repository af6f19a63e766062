// Package query caches dispatch results per resource and parameters, serves
// stale data while refreshing it and invalidates by resource after writes.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/itchan-dev/starter/shared/logger"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultStaleTime  = time.Minute
	defaultRetryDelay = 500 * time.Millisecond
)

// Key identifies a cache entry. Params are compared structurally through
// their JSON encoding. Scope separates the caches of different sessions.
type Key struct {
	Scope    string
	Resource string
	Params   any
}

func (k Key) id() (string, error) {
	params, err := json.Marshal(k.Params)
	if err != nil {
		return "", fmt.Errorf("query: encode params of %s: %w", k.Resource, err)
	}
	return k.Scope + "\x1f" + k.Resource + "\x1f" + string(params), nil
}

type entry struct {
	key         Key
	data        any
	hasData     bool
	err         error
	updatedAt   time.Time // last successful fetch
	attemptedAt time.Time // last finished fetch, successful or not
	usedAt      time.Time
	invalidated bool
	gen         uint64
	fetching    bool
	fetchGen    uint64 // generation of the flight that set fetching
}

// Client owns the cache. It is safe for concurrent use.
type Client struct {
	mu         sync.Mutex
	entries    map[string]*entry
	group      singleflight.Group
	staleTime  time.Duration
	retry      int
	retryDelay time.Duration
	now        func() time.Time
	log        *slog.Logger
	metrics    *Metrics
	background sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithStaleTime sets how long data counts as fresh.
func WithStaleTime(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.staleTime = d
		}
	}
}

// WithRetry retries failed fetches n times with exponential backoff. Client
// errors (4xx) are never retried. The default is 0.
func WithRetry(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retry = n
		}
	}
}

// WithRetryDelay sets the first backoff interval.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.retryDelay = d
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

func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func withClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		entries:    make(map[string]*entry),
		staleTime:  DefaultStaleTime,
		retryDelay: defaultRetryDelay,
		now:        time.Now,
		log:        logger.Component("query"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invalidate marks every entry of resource stale, in every scope. Readers
// re-dispatch on their next use; fetches already in flight cannot make the
// entries fresh again.
func (c *Client) Invalidate(resource string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		if e.key.Resource == resource {
			e.invalidated = true
			e.gen++
			n++
		}
	}
	c.log.Debug("invalidated", "resource", resource, "entries", n)
	return n
}

// Remove drops every entry of resource.
func (c *Client) Remove(resource string) int {
	return c.removeWhere(func(k Key) bool { return k.Resource == resource })
}

// RemoveScope drops every entry cached for scope, e.g. on logout.
func (c *Client) RemoveScope(scope string) int {
	return c.removeWhere(func(k Key) bool { return k.Scope == scope })
}

// Prune drops idle entries not used for maxIdle and not being fetched.
func (c *Client) Prune(maxIdle time.Duration) int {
	cutoff := c.now().Add(-maxIdle)
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !e.fetching && e.usedAt.Before(cutoff) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// StartPruning prunes idle entries every interval until ctx is done.
func (c *Client) StartPruning(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	c.log.Info("started cache pruning", "interval", interval, "max_idle", maxIdle)

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := c.Prune(maxIdle); n > 0 {
					c.log.Debug("pruned idle entries", "entries", n)
				}
			case <-ctx.Done():
				c.log.Info("cache pruning shutting down gracefully")
				return
			}
		}
	}()
}

// Len returns the number of cached entries.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close waits for background refreshes and pruning to finish. Pruning stops
// with the context given to StartPruning.
func (c *Client) Close() {
	c.background.Wait()
}

func (c *Client) removeWhere(match func(Key) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if match(e.key) {
			delete(c.entries, id)
			n++
		}
	}
	return n
}

// snapshot is a consistent copy of an entry taken under the lock.
type snapshot struct {
	exists      bool
	data        any
	hasData     bool
	err         error
	updatedAt   time.Time
	attemptedAt time.Time
	invalidated bool
	gen         uint64
	fetching    bool
}

func (s snapshot) stale(now time.Time, staleTime time.Duration) bool {
	return s.invalidated || now.Sub(s.updatedAt) >= staleTime
}

// recentlyFailed reports whether the last fetch failed less than staleTime
// ago. Such entries are not dispatched again until then or an invalidation.
func (s snapshot) recentlyFailed(now time.Time, staleTime time.Duration) bool {
	return s.err != nil && !s.invalidated && now.Sub(s.attemptedAt) < staleTime
}

// touch returns the entry state for id, creating an empty entry if needed.
func (c *Client) touch(id string, key Key) snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key}
		c.entries[id] = e
	}
	e.usedAt = c.now()
	return snapshot{
		exists:      ok,
		data:        e.data,
		hasData:     e.hasData,
		err:         e.err,
		updatedAt:   e.updatedAt,
		attemptedAt: e.attemptedAt,
		invalidated: e.invalidated,
		gen:         e.gen,
		fetching:    e.fetching,
	}
}

// bump forces the next run of id to be a new dispatch.
func (c *Client) bump(id string, key Key) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key}
		c.entries[id] = e
	}
	e.gen++
	return e.gen
}

// startFetching marks id as being fetched by the flight of generation gen.
func (c *Client) startFetching(id string, key Key, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key}
		c.entries[id] = e
	}
	e.fetching = true
	e.fetchGen = gen
}

// store records the outcome of a fetch started at generation gen. A flight
// superseded by an invalidation or a Refetch leaves the entry alone; its
// callers still receive the result.
func (c *Client) store(id string, gen uint64, data any, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		// Removed while in flight; do not resurrect it.
		return
	}
	if e.fetchGen == gen {
		e.fetching = false
	}
	if e.gen != gen {
		return
	}
	now := c.now()
	e.attemptedAt = now
	if err != nil {
		e.err = err
		return
	}
	e.data = data
	e.hasData = true
	e.err = nil
	e.updatedAt = now
	e.invalidated = false
}

// run performs (or joins) the dispatch of id at generation gen.
func (c *Client) run(ctx context.Context, id string, key Key, gen uint64, fetch func(context.Context) (any, error)) (any, error) {
	flightKey := id + "\x1f" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flightKey, func() (any, error) {
		c.startFetching(id, key, gen)
		// The dispatch is shared; one caller going away must not abort it.
		v, err := c.withRetry(context.WithoutCancel(ctx), fetch)
		c.store(id, gen, v, err)
		return v, err
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// refresh starts run for the current generation in the background unless a
// dispatch is already in flight.
func (c *Client) refresh(ctx context.Context, id string, key Key, fetch func(context.Context) (any, error)) {
	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok || e.fetching {
		c.mu.Unlock()
		return
	}
	gen := e.gen
	e.fetching = true
	e.fetchGen = gen
	c.mu.Unlock()

	c.background.Add(1)
	go func() {
		defer c.background.Done()
		if _, err := c.run(context.WithoutCancel(ctx), id, key, gen, fetch); err != nil {
			c.log.Debug("background refresh failed", "resource", key.Resource, "error", err)
		}
	}()
}

func (c *Client) withRetry(ctx context.Context, fetch func(context.Context) (any, error)) (any, error) {
	if c.retry <= 0 {
		return fetch(ctx)
	}

	var out any
	attempt := 0
	op := func() error {
		attempt++
		v, err := fetch(ctx)
		if err != nil {
			if code, ok := internal_errors.StatusCode(err); ok && code >= 400 && code < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryDelay
	eb.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retry)), ctx)

	err := backoff.Retry(op, policy)
	if err != nil && attempt > 1 {
		c.log.Debug("fetch failed after retries", "attempts", attempt, "error", err)
	}
	return out, err
}
