package httpkit

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DecodeJSON rejects a Content-Type other than application/json (a request
// with no Content-Type is decoded as JSON) and rejects unknown fields,
// matching the "input is toxic" decoding discipline the teacher applies
// to every request body.
func DecodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && ct != "application/json" {
		return fmt.Errorf("content-type must be application/json")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// ClientIP extracts the caller's address, preferring the value chi's
// RealIP middleware already normalized into r.RemoteAddr.
func ClientIP(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}
