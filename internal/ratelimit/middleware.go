package ratelimit

import (
	"net/http"
	"strconv"
)

// DefaultRetryAfterSeconds is the Retry-After value sent when throttled.
const DefaultRetryAfterSeconds = 1

// Middleware throttles requests by the identifier keyOf extracts. Requests
// without an identifier pass through; the handler validates them.
//
// Throttled requests get 429 with Retry-After and X-RateLimit-Remaining, and
// onLimited renders the body when it is non-nil.
func Middleware(limiter *RateLimiter, keyOf func(r *http.Request) string, onLimited http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyOf(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			l := limiter.GetLimiter(key)
			if !l.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				if onLimited != nil {
					onLimited(w, r)
					return
				}
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte("Too Many Requests"))
				return
			}

			remaining := int(l.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
