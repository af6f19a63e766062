package query

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type scopeKey struct{}

// WithScope tags ctx with the cache scope used by every query run under it.
func WithScope(ctx context.Context, scope string) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the cache scope of ctx, "" if none.
func ScopeFrom(ctx context.Context) string {
	scope, _ := ctx.Value(scopeKey{}).(string)
	return scope
}

// State is what a reader sees of a cache entry.
type State[T any] struct {
	Data       T
	HasData    bool
	IsLoading  bool // nothing cached yet and a fetch is in flight
	IsFetching bool // a fetch is in flight, stale data may be shown meanwhile
	IsStale    bool
	Error      error
	UpdatedAt  time.Time
}

// FetchFunc loads one resource for params.
type FetchFunc[P, T any] func(ctx context.Context, params P) (T, error)

// Query reads one resource through the cache.
type Query[P, T any] struct {
	c        *Client
	resource string
	fetch    FetchFunc[P, T]
}

func NewQuery[P, T any](c *Client, resource string, fetch FetchFunc[P, T]) *Query[P, T] {
	return &Query[P, T]{c: c, resource: resource, fetch: fetch}
}

// Resource returns the resource name the query caches under.
func (q *Query[P, T]) Resource() string {
	return q.resource
}

func (q *Query[P, T]) key(ctx context.Context, params P) (Key, string, error) {
	key := Key{Scope: ScopeFrom(ctx), Resource: q.resource, Params: params}
	id, err := key.id()
	return key, id, err
}

func (q *Query[P, T]) loader(params P) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return q.fetch(ctx, params)
	}
}

// Use returns the cached state without blocking. It starts a fetch when
// nothing is cached and a background refresh when the data is stale. A
// failed fetch is not repeated until the stale time has passed.
func (q *Query[P, T]) Use(ctx context.Context, params P) State[T] {
	var state State[T]
	key, id, err := q.key(ctx, params)
	if err != nil {
		state.Error = err
		return state
	}

	c := q.c
	s := c.touch(id, key)
	now := c.now()
	state.UpdatedAt = s.updatedAt
	state.Error = s.err
	state.IsFetching = s.fetching
	if s.hasData {
		state.Data, state.HasData = s.data.(T)
	}

	switch {
	case !s.hasData && s.fetching:
		state.IsLoading = true
	case !s.hasData && s.recentlyFailed(now, c.staleTime):
		c.metrics.request(q.resource, resultError)
	case !s.hasData:
		c.metrics.request(q.resource, resultMiss)
		c.refresh(ctx, id, key, q.loader(params))
		state.IsLoading = true
		state.IsFetching = true
	case s.stale(now, c.staleTime):
		c.metrics.request(q.resource, resultStale)
		state.IsStale = true
		if !s.fetching && !s.recentlyFailed(now, c.staleTime) {
			c.refresh(ctx, id, key, q.loader(params))
			state.IsFetching = true
		}
	default:
		c.metrics.request(q.resource, resultHit)
	}
	return state
}

// Fetch returns the resource, blocking only when it has to. Fresh data is
// returned as is; data gone stale with time is returned while a background
// refresh runs; missing or invalidated data is dispatched and waited for.
// Identical concurrent calls share one dispatch.
func (q *Query[P, T]) Fetch(ctx context.Context, params P) (T, error) {
	var zero T
	key, id, err := q.key(ctx, params)
	if err != nil {
		return zero, err
	}

	c := q.c
	s := c.touch(id, key)
	if s.hasData && !s.invalidated {
		if data, ok := s.data.(T); ok {
			now := c.now()
			if s.stale(now, c.staleTime) {
				c.metrics.request(q.resource, resultStale)
				if !s.recentlyFailed(now, c.staleTime) {
					c.refresh(ctx, id, key, q.loader(params))
				}
			} else {
				c.metrics.request(q.resource, resultHit)
			}
			return data, nil
		}
	}

	c.metrics.request(q.resource, resultMiss)
	return q.wait(ctx, id, key, s.gen, params)
}

// Refetch dispatches regardless of freshness and waits for the result.
func (q *Query[P, T]) Refetch(ctx context.Context, params P) (T, error) {
	var zero T
	key, id, err := q.key(ctx, params)
	if err != nil {
		return zero, err
	}
	gen := q.c.bump(id, key)
	q.c.metrics.request(q.resource, resultRefetch)
	return q.wait(ctx, id, key, gen, params)
}

func (q *Query[P, T]) wait(ctx context.Context, id string, key Key, gen uint64, params P) (T, error) {
	var zero T
	v, err := q.c.run(ctx, id, key, gen, q.loader(params))
	if err != nil {
		return zero, err
	}
	data, ok := v.(T)
	if !ok && v != nil {
		return zero, fmt.Errorf("query: %s cached %T, want %T", q.resource, v, zero)
	}
	return data, nil
}

// MutateFunc performs one write.
type MutateFunc[B, R any] func(ctx context.Context, body B) (R, error)

// Mutation performs writes and invalidates the resources they affect.
type Mutation[B, R any] struct {
	c           *Client
	mutate      MutateFunc[B, R]
	invalidates []string
	pending     atomic.Int32
}

// NewMutation wraps mutate; after every successful call each resource in
// invalidates is marked stale.
func NewMutation[B, R any](c *Client, mutate MutateFunc[B, R], invalidates ...string) *Mutation[B, R] {
	return &Mutation[B, R]{c: c, mutate: mutate, invalidates: invalidates}
}

func (m *Mutation[B, R]) Mutate(ctx context.Context, body B) (R, error) {
	m.pending.Add(1)
	defer m.pending.Add(-1)

	out, err := m.mutate(ctx, body)
	if err != nil {
		return out, err
	}
	for _, resource := range m.invalidates {
		m.c.Invalidate(resource)
	}
	return out, nil
}

// IsPending reports whether a Mutate call is in progress.
func (m *Mutation[B, R]) IsPending() bool {
	return m.pending.Load() > 0
}
