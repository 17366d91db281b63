package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero disables
	// limiting.
	Max int
	// Window is the window length.
	Window time.Duration
	// KeyFunc groups requests. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
	// Skip exempts requests, such as health probes, from limiting.
	Skip func(*http.Request) bool
}

// counter approximates a sliding window from the current fixed window and
// the one before it.
type counter struct {
	start time.Time
	prev  float64
	curr  float64
}

type rateLimiter struct {
	max    float64
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	counters map[string]*counter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	return &rateLimiter{
		max:      float64(cfg.Max),
		window:   cfg.Window,
		now:      time.Now,
		counters: make(map[string]*counter),
	}
}

// take records a request for key if it fits. It returns the remaining budget
// and when the current window ends.
func (rl *rateLimiter) take(key string) (remaining int, reset time.Time, ok bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, found := rl.counters[key]
	if !found {
		c = &counter{start: now.Truncate(rl.window)}
		rl.counters[key] = c
	}
	switch elapsed := now.Sub(c.start); {
	case elapsed >= 2*rl.window:
		c.prev, c.curr = 0, 0
		c.start = now.Truncate(rl.window)
	case elapsed >= rl.window:
		c.prev, c.curr = c.curr, 0
		c.start = c.start.Add(rl.window)
	}

	weight := 1 - float64(now.Sub(c.start))/float64(rl.window)
	used := c.prev*math.Max(weight, 0) + c.curr
	reset = c.start.Add(rl.window)
	if used >= rl.max {
		return 0, reset, false
	}
	c.curr++
	return max(int(rl.max-used-1), 0), reset, true
}

// evict drops counters idle for two windows.
func (rl *rateLimiter) evict() {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.counters {
		if now.Sub(c.start) >= 2*rl.window {
			delete(rl.counters, key)
		}
	}
}

// RateLimit limits requests per key. Rejected requests get 429 with
// Retry-After; every limited response carries X-RateLimit-* headers.
// Stale counters are evicted every two windows until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	rl := newRateLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.evict()
			}
		}
	}()
	return rl.middleware(cfg)
}

func (rl *rateLimiter) middleware(cfg RateLimitConfig) Middleware {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	limit := strconv.Itoa(cfg.Max)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			remaining, reset, ok := rl.take(keyFunc(r))
			h := w.Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				wait := max(reset.Sub(rl.now()), 0)
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
