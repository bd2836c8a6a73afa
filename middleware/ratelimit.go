package middleware

import (
	"net"
	"net/http"

	"codesync-backend/pkg/ratelimit"

	"github.com/go-chi/render"
)

// RateLimitByIP rejects requests with 429 once a client IP exhausts its
// token bucket. Used on the AI routes, which proxy to a metered upstream.
func RateLimitByIP(limiters *ratelimit.ClientLimiters) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}

			if !limiters.Get(host).Allow() {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, map[string]any{
					"success": false,
					"error":   "Rate limit exceeded. Please try again in 60 seconds.",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
