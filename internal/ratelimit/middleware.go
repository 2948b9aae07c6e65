package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"github.com/ConfabulousDev/confab-insights/internal/logger"
)

// RejectFunc writes the response for a limited request.
type RejectFunc func(w http.ResponseWriter, r *http.Request)

// Middleware limits requests per client IP. RemoteAddr is expected to be the
// client address already (chi's RealIP middleware runs first). Rejected
// requests get a Retry-After header and are passed to reject.
func Middleware(limiter RateLimiter, reject RejectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r)
			if !limiter.Allow(r.Context(), key) {
				wait := limiter.RetryAfter(key)
				logger.Ctx(r.Context()).Warn("rate limit exceeded",
					"client", key,
					"path", r.URL.Path,
					"retry_after_s", int(wait.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())))
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey returns the host part of RemoteAddr.
func ClientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
