package middleware

import (
	"net/http"
	"strconv"

	"github.com/meridianclinic/platform/internal/platform/apierror"
	"github.com/meridianclinic/platform/internal/platform/ratelimit"
)

// retryAfterSeconds is the window a caller is told to back off for on
// exhaustion, matching the bucket's 60-second rolling window.
const retryAfterSeconds = 60

// RateLimit keys each request by authenticated user id when present,
// otherwise by client IP, per spec.md's RateBucket key rule. A limiter
// error (e.g. Redis unreachable) fails open: the request proceeds and a
// warning was already logged by the limiter itself. limitPerMinute is
// echoed back on every response via X-RateLimit-Limit, and as
// X-RateLimit-Remaining/Retry-After once a caller is exhausted.
func RateLimit(limiter ratelimit.Limiter, limitPerMinute int) func(http.Handler) http.Handler {
	limit := strconv.Itoa(limitPerMinute)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.RemoteAddr
			if userID, err := GetUserID(r.Context()); err == nil {
				key = userID.String()
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
				apierror.WriteJSON(w, r, apierror.New(apierror.RateLimited, "rate_limited", "too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
