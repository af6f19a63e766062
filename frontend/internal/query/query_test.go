package query

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	internal_errors "github.com/itchan-dev/starter/shared/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type listParams struct {
	Page int    `json:"page"`
	Sort string `json:"sort,omitempty"`
}

// counter is a fetch function returning its call number.
type counter struct {
	calls atomic.Int32
	err   error
}

func (c *counter) fetch(_ context.Context, p listParams) ([]int, error) {
	n := int(c.calls.Add(1))
	if c.err != nil {
		return nil, c.err
	}
	return []int{p.Page, n}, nil
}

func TestFetch_Caches(t *testing.T) {
	c := NewClient()
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	first, err := q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	second, err := q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 1}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.calls.Load())

	_, err = q.Fetch(ctx, listParams{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestFetch_StructuralKey(t *testing.T) {
	c := NewClient()
	defer c.Close()
	var calls atomic.Int32
	q := NewQuery(c, "boards", func(_ context.Context, p map[string]any) (int, error) {
		return int(calls.Add(1)), nil
	})
	ctx := context.Background()

	a := map[string]any{"page": 1, "sort": "new"}
	b := map[string]any{"sort": "new", "page": 1}
	_, err := q.Fetch(ctx, a)
	require.NoError(t, err)
	_, err = q.Fetch(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, c.Len())
}

func TestFetch_BadParams(t *testing.T) {
	c := NewClient()
	q := NewQuery(c, "boards", func(context.Context, chan int) (int, error) { return 0, nil })

	_, err := q.Fetch(context.Background(), make(chan int))
	assert.Error(t, err)

	state := q.Use(context.Background(), make(chan int))
	assert.Error(t, state.Error)
}

func TestFetch_StaleWhileRevalidate(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithStaleTime(time.Minute), withClock(clock.now))
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	_, err := q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)

	clock.advance(30 * time.Second)
	got, err := q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, got)
	assert.Equal(t, int32(1), src.calls.Load(), "fresh data must not dispatch")

	clock.advance(time.Minute)
	got, err = q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, got, "stale data is served immediately")

	c.Close()
	assert.Equal(t, int32(2), src.calls.Load(), "and refreshed in the background")

	got, err = q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
}

func TestFetch_Deduplicates(t *testing.T) {
	c := NewClient()
	defer c.Close()
	release := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery(c, "boards", func(context.Context, listParams) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	})

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := q.Fetch(context.Background(), listParams{Page: 1})
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 42, v)
	}
}

func TestFetch_CallerCancelDoesNotAbortDispatch(t *testing.T) {
	c := NewClient()
	defer c.Close()
	release := make(chan struct{})
	q := NewQuery(c, "boards", func(ctx context.Context, _ listParams) (int, error) {
		<-release
		return 7, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Fetch(ctx, listParams{})
		done <- err
	}()

	require.Eventually(t, func() bool { return q.Use(context.Background(), listParams{}).IsFetching }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.Eventually(t, func() bool { return q.Use(context.Background(), listParams{}).HasData }, time.Second, time.Millisecond)
	v, err := q.Fetch(context.Background(), listParams{})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestUse(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithStaleTime(time.Minute), withClock(clock.now))
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	state := q.Use(ctx, listParams{Page: 1})
	assert.True(t, state.IsLoading)
	assert.True(t, state.IsFetching)
	assert.False(t, state.HasData)

	c.Close()
	state = q.Use(ctx, listParams{Page: 1})
	assert.False(t, state.IsLoading)
	assert.False(t, state.IsFetching)
	assert.False(t, state.IsStale)
	assert.True(t, state.HasData)
	assert.Equal(t, []int{1, 1}, state.Data)
	assert.Equal(t, clock.now(), state.UpdatedAt)

	clock.advance(2 * time.Minute)
	state = q.Use(ctx, listParams{Page: 1})
	assert.True(t, state.IsStale)
	assert.True(t, state.IsFetching)
	assert.Equal(t, []int{1, 1}, state.Data, "stale data is still served")

	c.Close()
	state = q.Use(ctx, listParams{Page: 1})
	assert.Equal(t, []int{1, 2}, state.Data)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestUse_ErrorNotRetried(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithStaleTime(time.Minute), withClock(clock.now))
	defer c.Close()
	boom := errors.New("boom")
	src := &counter{err: boom}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	q.Use(ctx, listParams{})
	c.Close()

	state := q.Use(ctx, listParams{})
	assert.ErrorIs(t, state.Error, boom)
	assert.False(t, state.IsFetching)
	c.Close()
	assert.Equal(t, int32(1), src.calls.Load())

	clock.advance(2 * time.Minute)
	q.Use(ctx, listParams{})
	c.Close()
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestRefetch(t *testing.T) {
	c := NewClient()
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	_, err := q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)

	got, err := q.Refetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	got, err = q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestMutation_Invalidates(t *testing.T) {
	c := NewClient()
	defer c.Close()
	boards := &counter{}
	users := &counter{}
	boardList := NewQuery(c, "boards", boards.fetch)
	me := NewQuery(c, "users", users.fetch)
	ctx := context.Background()

	_, err := boardList.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	_, err = boardList.Fetch(ctx, listParams{Page: 2})
	require.NoError(t, err)
	_, err = me.Fetch(ctx, listParams{})
	require.NoError(t, err)

	create := NewMutation(c, func(_ context.Context, name string) (string, error) {
		return name, nil
	}, "boards")

	out, err := create.Mutate(ctx, "random")
	require.NoError(t, err)
	assert.Equal(t, "random", out)
	assert.False(t, create.IsPending())

	state := boardList.Use(ctx, listParams{Page: 2})
	assert.True(t, state.IsStale)
	c.Close()

	got, err := boardList.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, got, "invalidated read re-dispatches")

	_, err = me.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), users.calls.Load(), "other resources are untouched")
}

func TestMutation_FailureKeepsCache(t *testing.T) {
	c := NewClient()
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	_, err := q.Fetch(ctx, listParams{})
	require.NoError(t, err)

	boom := errors.New("boom")
	m := NewMutation(c, func(context.Context, string) (int, error) { return 0, boom }, "boards")
	_, err = m.Mutate(ctx, "x")
	assert.ErrorIs(t, err, boom)

	_, err = q.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestMutation_IsPending(t *testing.T) {
	c := NewClient()
	release := make(chan struct{})
	m := NewMutation(c, func(context.Context, int) (int, error) {
		<-release
		return 1, nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = m.Mutate(context.Background(), 1)
	}()

	require.Eventually(t, m.IsPending, time.Second, time.Millisecond)
	close(release)
	<-done
	assert.False(t, m.IsPending())
}

func TestInvalidate_DuringFetch(t *testing.T) {
	c := NewClient()
	defer c.Close()
	release := make(chan struct{})
	var calls atomic.Int32
	q := NewQuery(c, "boards", func(context.Context, listParams) (int, error) {
		n := calls.Add(1)
		if n == 1 {
			<-release
		}
		return int(n), nil
	})
	ctx := context.Background()

	done := make(chan int, 1)
	go func() {
		v, _ := q.Fetch(ctx, listParams{})
		done <- v
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)

	c.Invalidate("boards")
	close(release)
	assert.Equal(t, 1, <-done)

	v, err := q.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, 2, v, "a result started before invalidation is not fresh")
}

// backing is a fetch source whose value can change between dispatches. The
// first dispatch blocks on hold after reading the value.
type backing struct {
	mu    sync.Mutex
	value string
	calls atomic.Int32
	hold  chan struct{}
}

func (b *backing) set(v string) {
	b.mu.Lock()
	b.value = v
	b.mu.Unlock()
}

func (b *backing) fetch(context.Context, listParams) (string, error) {
	b.mu.Lock()
	v := b.value
	b.mu.Unlock()
	if b.calls.Add(1) == 1 {
		<-b.hold
	}
	return v, nil
}

func TestMutation_LateFetchDoesNotOverwrite(t *testing.T) {
	c := NewClient()
	defer c.Close()
	src := &backing{value: "v1", hold: make(chan struct{})}
	q := NewQuery(c, "boards", src.fetch)
	rename := NewMutation(c, func(_ context.Context, v string) (string, error) {
		src.set(v)
		return v, nil
	}, "boards")
	ctx := context.Background()

	done := make(chan string, 1)
	go func() {
		v, _ := q.Fetch(ctx, listParams{})
		done <- v
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, err := rename.Mutate(ctx, "v2")
	require.NoError(t, err)
	got, err := q.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	close(src.hold)
	assert.Equal(t, "v1", <-done, "the early caller still gets its own result")

	got, err = q.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, "v2", got, "data read before the mutation must not come back")
	assert.Equal(t, int32(2), src.calls.Load())

	state := q.Use(ctx, listParams{})
	assert.False(t, state.IsStale)
	assert.False(t, state.IsFetching)
	assert.Equal(t, "v2", state.Data)
}

func TestRefetch_LateFetchDoesNotOverwrite(t *testing.T) {
	c := NewClient()
	defer c.Close()
	src := &backing{value: "old", hold: make(chan struct{})}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	done := make(chan string, 1)
	go func() {
		v, _ := q.Fetch(ctx, listParams{})
		done <- v
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	src.set("new")
	got, err := q.Refetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, "new", got)

	close(src.hold)
	assert.Equal(t, "old", <-done)

	got, err = q.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, "new", got)
	assert.False(t, q.Use(ctx, listParams{}).IsStale)
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestUse_FailedRefreshNotRetried(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(WithStaleTime(time.Minute), withClock(clock.now))
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	_, err := q.Fetch(ctx, listParams{})
	require.NoError(t, err)

	boom := errors.New("boom")
	src.err = boom
	clock.advance(2 * time.Minute)
	state := q.Use(ctx, listParams{})
	assert.True(t, state.IsFetching)
	c.Close()
	require.Equal(t, int32(2), src.calls.Load())

	for i := 0; i < 5; i++ {
		state = q.Use(ctx, listParams{})
		assert.True(t, state.IsStale)
		assert.False(t, state.IsFetching)
		assert.ErrorIs(t, state.Error, boom)
		assert.Equal(t, []int{0, 1}, state.Data, "last good data is kept")
	}
	got, err := q.Fetch(ctx, listParams{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, got)
	c.Close()
	assert.Equal(t, int32(2), src.calls.Load(), "a failed refresh waits for the stale time")

	clock.advance(2 * time.Minute)
	q.Use(ctx, listParams{})
	c.Close()
	assert.Equal(t, int32(3), src.calls.Load())
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled by default", func(t *testing.T) {
		c := NewClient()
		src := &counter{err: errors.New("boom")}
		q := NewQuery(c, "boards", src.fetch)
		_, err := q.Fetch(ctx, listParams{})
		assert.Error(t, err)
		assert.Equal(t, int32(1), src.calls.Load())
	})

	t.Run("retries transient failures", func(t *testing.T) {
		c := NewClient(WithRetry(3), WithRetryDelay(time.Millisecond))
		var calls atomic.Int32
		q := NewQuery(c, "boards", func(context.Context, listParams) (int, error) {
			if calls.Add(1) < 3 {
				return 0, &internal_errors.ServiceError{StatusCode: http.StatusBadGateway, Message: "down"}
			}
			return 9, nil
		})
		v, err := q.Fetch(ctx, listParams{})
		require.NoError(t, err)
		assert.Equal(t, 9, v)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after the limit", func(t *testing.T) {
		c := NewClient(WithRetry(2), WithRetryDelay(time.Millisecond))
		src := &counter{err: errors.New("boom")}
		q := NewQuery(c, "boards", src.fetch)
		_, err := q.Fetch(ctx, listParams{})
		assert.Error(t, err)
		assert.Equal(t, int32(3), src.calls.Load())
	})

	t.Run("client errors are final", func(t *testing.T) {
		c := NewClient(WithRetry(3), WithRetryDelay(time.Millisecond))
		src := &counter{err: &internal_errors.ServiceError{StatusCode: http.StatusUnauthorized, Message: "expired"}}
		q := NewQuery(c, "boards", src.fetch)
		_, err := q.Fetch(ctx, listParams{})
		var se *internal_errors.ServiceError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, int32(1), src.calls.Load())
	})
}

func TestScope(t *testing.T) {
	c := NewClient()
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "users", src.fetch)

	alice := WithScope(context.Background(), "alice")
	bob := WithScope(context.Background(), "bob")
	assert.Equal(t, "alice", ScopeFrom(alice))
	assert.Equal(t, "", ScopeFrom(context.Background()))

	a, err := q.Fetch(alice, listParams{})
	require.NoError(t, err)
	b, err := q.Fetch(bob, listParams{})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, int32(2), src.calls.Load())

	assert.Equal(t, 1, c.RemoveScope("alice"))
	_, err = q.Fetch(alice, listParams{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), src.calls.Load())

	assert.Equal(t, 2, c.Invalidate("users"), "invalidation crosses scopes")
	assert.Equal(t, 2, c.Remove("users"))
	assert.Equal(t, 0, c.Len())
}

func TestPrune(t *testing.T) {
	clock := newFakeClock()
	c := NewClient(withClock(clock.now))
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	_, err := q.Fetch(ctx, listParams{Page: 1})
	require.NoError(t, err)
	clock.advance(10 * time.Minute)
	_, err = q.Fetch(ctx, listParams{Page: 2})
	require.NoError(t, err)

	assert.Equal(t, 1, c.Prune(5*time.Minute))
	assert.Equal(t, 1, c.Len())
}

func TestStartPruning(t *testing.T) {
	c := NewClient()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	_, err := q.Fetch(context.Background(), listParams{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	c.StartPruning(ctx, 5*time.Millisecond, 0)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, time.Millisecond)

	cancel()
	c.Close()
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	c := NewClient(WithMetrics(m))
	defer c.Close()
	src := &counter{}
	q := NewQuery(c, "boards", src.fetch)
	ctx := context.Background()

	_, _ = q.Fetch(ctx, listParams{})
	_, _ = q.Fetch(ctx, listParams{})
	_, _ = q.Refetch(ctx, listParams{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("boards", resultMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("boards", resultHit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("boards", resultRefetch)))
}
