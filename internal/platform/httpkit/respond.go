// Package httpkit holds small HTTP request/response helpers shared by
// every service, grounded on the teacher's internal/api/helpers package.
package httpkit

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encode_json_response_failed", "error", err)
	}
}
