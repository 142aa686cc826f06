package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"dynaquery/internal/domain"
)

const (
	sweepInterval = 5 * time.Minute
	idleAfter     = 10 * time.Minute
)

// RateLimitConfig sizes each caller's token bucket.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

type bucket struct {
	*rate.Limiter
	touched time.Time
}

// buckets hands out one limiter per caller key.
type buckets struct {
	cfg RateLimitConfig

	mu sync.Mutex
	m  map[string]*bucket
}

func (b *buckets) get(key string, now time.Time) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	bk, ok := b.m[key]
	if !ok {
		bk = &bucket{Limiter: rate.NewLimiter(rate.Limit(b.cfg.RequestsPerSecond), b.cfg.Burst)}
		b.m[key] = bk
	}
	bk.touched = now
	return bk.Limiter
}

func (b *buckets) sweep(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, bk := range b.m {
		if now.Sub(bk.touched) > idleAfter {
			delete(b.m, key)
		}
	}
}

// RateLimiter limits each tenant, or each client IP for unauthenticated
// routes, to a token bucket. Rejected requests get 429 with Retry-After.
// Idle buckets are dropped until ctx is done.
func RateLimiter(ctx context.Context, cfg RateLimitConfig) func(http.Handler) http.Handler {
	set := &buckets{cfg: cfg, m: make(map[string]*bucket)}

	go func() {
		ticker := time.NewTicker(sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				set.sweep(now)
			}
		}
	}()

	limit := strconv.Itoa(cfg.Burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			lim := set.get(clientKey(r), now)

			res := lim.ReserveN(now, 1)
			if !res.OK() {
				writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			if wait := res.DelayFrom(now); wait > 0 {
				res.CancelAt(now)
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(int(lim.TokensAt(now))))
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey prefers the authenticated tenant and falls back to the peer
// address. X-Forwarded-For is ignored.
func clientKey(r *http.Request) string {
	if t, ok := domain.TenantFromContext(r.Context()); ok {
		return "tenant:" + t.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
