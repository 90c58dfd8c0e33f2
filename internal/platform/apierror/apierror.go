// Package apierror implements the uniform error taxonomy and HTTP envelope
// described in spec.md §7/§9: every handler across every service returns
// one of these kinds instead of an ad-hoc http.Error call, so the gateway
// and every domain service render identical error bodies.
package apierror

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Kind is one of the error categories spec.md §7 enumerates.
type Kind string

const (
	Validation           Kind = "VALIDATION"
	Unauthorized         Kind = "UNAUTHORIZED"
	Forbidden            Kind = "FORBIDDEN"
	NotFound             Kind = "NOT_FOUND"
	Conflict             Kind = "CONFLICT"
	RateLimited          Kind = "RATE_LIMITED"
	UpstreamUnavailable  Kind = "UPSTREAM_UNAVAILABLE"
	UpstreamTimeout      Kind = "UPSTREAM_TIMEOUT"
	Unexpected           Kind = "UNEXPECTED"
)

// statusByKind maps each Kind to the HTTP status spec.md §4.9 specifies.
var statusByKind = map[Kind]int{
	Validation:          http.StatusBadRequest,
	Unauthorized:        http.StatusUnauthorized,
	Forbidden:           http.StatusForbidden,
	NotFound:            http.StatusNotFound,
	Conflict:            http.StatusConflict,
	RateLimited:         http.StatusTooManyRequests,
	Unexpected:          http.StatusInternalServerError,
	UpstreamUnavailable: http.StatusServiceUnavailable,
	UpstreamTimeout:     http.StatusGatewayTimeout,
}

// FieldError attaches a field-level validation failure to the envelope.
type FieldError struct {
	Field         string `json:"field"`
	Message       string `json:"message"`
	RejectedValue any    `json:"rejectedValue,omitempty"`
}

// Error is the application-level error type every service function
// returns for business failures. It carries enough information to render
// the uniform envelope without the HTTP layer re-deriving anything.
type Error struct {
	Kind        Kind
	Code        string // stable machine-readable code, e.g. "double_booking"
	Message     string // user-safe message
	FieldErrors []FieldError
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New builds an Error of the given kind with a stable code and message.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches an internal cause to an Error for logging, without
// exposing it to the client.
func Wrap(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

// WithField appends a field-level error and returns the receiver for chaining.
func (e *Error) WithField(field, message string, rejected any) *Error {
	e.FieldErrors = append(e.FieldErrors, FieldError{Field: field, Message: message, RejectedValue: rejected})
	return e
}

// Status returns the HTTP status code for the error's kind.
func (e *Error) Status() int {
	if s, ok := statusByKind[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Envelope is the wire format every service writes on error, per spec.md §4.9.
type Envelope struct {
	Timestamp   time.Time    `json:"timestamp"`
	Status      int          `json:"status"`
	ErrorText   string       `json:"error"`
	ErrorCode   string       `json:"errorCode"`
	Message     string       `json:"message"`
	Path        string       `json:"path"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
}

// WriteJSON renders err (any error, not just *Error) as the uniform
// envelope on w. Unexpected/5xx errors are logged with their full cause;
// 4xx errors are logged at warn level without a stack trace, per spec.md's
// "4xx must not log stack traces; 5xx must" rule.
func WriteJSON(w http.ResponseWriter, r *http.Request, err error) {
	apiErr, ok := err.(*Error)
	if !ok {
		apiErr = Wrap(Unexpected, "unexpected_error", "an unexpected error occurred", err)
	}

	status := apiErr.Status()
	env := Envelope{
		Timestamp:   time.Now().UTC(),
		Status:      status,
		ErrorText:   http.StatusText(status),
		ErrorCode:   apiErr.Code,
		Message:     apiErr.Message,
		Path:        r.URL.Path,
		FieldErrors: apiErr.FieldErrors,
	}

	if status >= 500 {
		slog.Error("request_failed", "path", r.URL.Path, "status", status, "code", apiErr.Code, "error", apiErr.Error())
	} else {
		slog.Warn("request_rejected", "path", r.URL.Path, "status", status, "code", apiErr.Code, "message", apiErr.Message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
