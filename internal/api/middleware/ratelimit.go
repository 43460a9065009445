package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

// RateLimiter implements a simple in-memory fixed-window rate limiter
// keyed by "{action}:{client-ip}". It is constructed once at startup and
// shared by reference; swap it for a distributed backend behind the same
// surface if a deployment needs cross-replica limits.
type RateLimiter struct {
	windows map[string]*window
	max     int
	period  time.Duration
	mu      sync.Mutex
}

type window struct {
	resetTime time.Time
	count     int
}

// NewRateLimiter creates a rate limiter allowing max attempts per period
// for each key.
func NewRateLimiter(max int, period time.Duration) *RateLimiter {
	rl := &RateLimiter{
		windows: make(map[string]*window),
		max:     max,
		period:  period,
	}

	// Cleanup old windows every period
	go rl.cleanup()

	return rl
}

// Allow records one attempt for the "{action}:{ip}" key and reports
// whether it is within the limit. Counters are incremented under a lock;
// concurrent attempts never overcount.
func (rl *RateLimiter) Allow(action, clientIP string) bool {
	key := action + ":" + clientIP

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now().UTC()

	w, exists := rl.windows[key]
	if !exists || now.After(w.resetTime) {
		rl.windows[key] = &window{count: 1, resetTime: now.Add(rl.period)}
		return true
	}

	if w.count < rl.max {
		w.count++
		return true
	}

	return false
}

// Middleware gates a route on the limiter under the given action key.
// Throttled requests get a plain 429.
func (rl *RateLimiter) Middleware(action string) func(http.Handler) http.Handler {
	return rl.middleware(action, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	})
}

// MiddlewareWithRejection gates a route on the limiter but hands
// throttled requests to reject instead of writing a 429. Redirect-style
// boundaries install their own failure action here so a throttled
// request exits the same way as any other failure.
func (rl *RateLimiter) MiddlewareWithRejection(action string, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return rl.middleware(action, reject)
}

func (rl *RateLimiter) middleware(action string, reject http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(action, ClientIP(r)) {
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// cleanup removes expired windows periodically
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.period)
	defer ticker.Stop()

	for range ticker.C {
		rl.mu.Lock()
		now := time.Now().UTC()
		for key, w := range rl.windows {
			if now.After(w.resetTime) {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}

// ClientIP extracts the client IP from the request, honoring proxy
// headers.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		// First hop is the original client
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			return strings.TrimSpace(forwarded[:i])
		}
		return strings.TrimSpace(forwarded)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
