// Package api implements the Ansuz REST API using chi.
package api

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// AuthMiddleware returns middleware that validates a Bearer token.
// If enabled is false, all requests pass through (disabled mode).
// If enabled is true, requests must carry a valid "Authorization: Bearer <token>" header.
func AuthMiddleware(enabled bool, token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, errorBody("unauthorized"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bucket tracks the refillable token count for one client.
type bucket struct {
	tokens float64
	last   time.Time
}

// RateLimitMiddleware returns middleware enforcing a per-client request
// budget (token bucket keyed by remote IP, refilled at perMinute/60 per
// second). perMinute <= 0 disables limiting.
func RateLimitMiddleware(perMinute int) func(http.Handler) http.Handler {
	var (
		mu      sync.Mutex
		buckets = make(map[string]*bucket)
	)
	rate := float64(perMinute) / 60.0

	allow := func(key string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		b, ok := buckets[key]
		if !ok {
			b = &bucket{tokens: float64(perMinute), last: now}
			buckets[key] = b
		}
		b.tokens += now.Sub(b.last).Seconds() * rate
		if b.tokens > float64(perMinute) {
			b.tokens = float64(perMinute)
		}
		b.last = now

		if b.tokens < 1 {
			return false
		}
		b.tokens--
		return true
	}

	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// chi's RealIP middleware has already rewritten RemoteAddr.
			key := r.RemoteAddr
			if i := strings.LastIndex(key, ":"); i >= 0 {
				key = key[:i]
			}
			if !allow(key) {
				writeJSON(w, http.StatusTooManyRequests, errorBody("rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
