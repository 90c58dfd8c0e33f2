package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
)

// Recovery captures panics, logs the stack server-side, reports to
// Sentry, and responds with a generic 500 so nothing internal leaks to
// the client.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				stack := string(debug.Stack())
				slog.Error("panic_recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"stack", stack,
				)

				if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
					hub.Recover(err)
				}

				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
