package middleware

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestLogger logs one structured line per request with its outcome
// status, matching the severity-by-status convention the rest of the
// platform uses.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := chimw.GetReqID(r.Context())
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		level := slog.LevelInfo
		if ww.Status() >= 500 {
			level = slog.LevelError
		} else if ww.Status() >= 400 {
			level = slog.LevelWarn
		}

		slog.Log(r.Context(), level, "http_request_completed",
			"status", ww.Status(),
			"method", r.Method,
			"path", r.URL.Path,
			"duration", duration,
			"req_id", reqID,
			"ip", r.RemoteAddr,
		)
	})
}
