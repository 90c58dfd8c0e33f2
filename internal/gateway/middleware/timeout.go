package middleware

import (
	"net/http"
	"time"
)

// Timeout bounds how long a request may run before the gateway gives up
// on the upstream and returns 504, using the standard library's
// http.TimeoutHandler rather than a hand-rolled context race.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "upstream request timed out")
	}
}
