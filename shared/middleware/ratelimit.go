package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/itchan-dev/starter/shared/logger"
	"github.com/itchan-dev/starter/shared/utils"
	"golang.org/x/time/rate"
)

// KeyedLimiter keeps one token bucket per key, e.g. per client IP.
type KeyedLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*keyedEntry
}

type keyedEntry struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewKeyedLimiter(limit rate.Limit, burst int) *KeyedLimiter {
	return &KeyedLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*keyedEntry),
	}
}

// Allow reports whether key may perform one more request now.
func (l *KeyedLimiter) Allow(key string) bool {
	l.mu.Lock()
	e, ok := l.limiters[key]
	if !ok {
		e = &keyedEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.seen = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// Cleanup forgets keys idle for maxIdle.
func (l *KeyedLimiter) Cleanup(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, e := range l.limiters {
		if e.seen.Before(cutoff) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *KeyedLimiter) StartCleanup(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup(maxIdle)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit rejects requests over the per-identity limit with 429.
func RateLimit(l *KeyedLimiter, getIdentity func(r *http.Request) (string, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := getIdentity(r)
			if err != nil {
				utils.WriteErrorAndStatusCode(w, err)
				return
			}
			if !l.Allow(identity) {
				logger.Log.Warn("rate limit exceeded", "identity", identity, "path", r.URL.Path)
				http.Error(w, "Rate limit exceeded, try again later", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitByIP limits by client IP.
func RateLimitByIP(l *KeyedLimiter) func(http.Handler) http.Handler {
	return RateLimit(l, utils.GetIP)
}
