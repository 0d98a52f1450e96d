package httpapi

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimit caps the sustained request rate across all clients. A
// limit of zero or less disables the middleware.
func RateLimit(next http.Handler, limit float64, burst int) http.Handler {
	if limit <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(limit), burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
