// Package errs defines the sentinel error taxonomy shared across
// components (spec.md §7), wrapped with %w at call sites and inspected
// with errors.Is/errors.As — never string matching.
package errs

import "errors"

var (
	// ErrStoreUnavailable marks a transient store failure (§4.1): callers
	// retry with bounded backoff.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrStoreRejected marks a non-retryable store failure (schema or
	// constraint violation): the caller drops the bucket and alerts.
	ErrStoreRejected = errors.New("store rejected write")
	// ErrCacheUnavailable marks a cache-tier outage; callers degrade to a
	// direct store read with no functional loss.
	ErrCacheUnavailable = errors.New("cache unavailable")
	// ErrHistoryFetch marks an upstream history-API failure (§4.6).
	ErrHistoryFetch = errors.New("history fetch failed")
	// ErrDecode marks a malformed inbound message; counted and dropped,
	// never surfaced.
	ErrDecode = errors.New("decode error")
	// ErrValidation marks an inbound message with an out-of-range or
	// missing required field; counted, dropped, warned.
	ErrValidation = errors.New("validation error")
)

// Kind is the stable machine-readable error category surfaced on the
// query-path APIError envelope (§7 "User-visible behavior").
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindNotFound      Kind = "not_found"
	KindUnavailable   Kind = "service_unavailable"
	KindInternal      Kind = "internal_error"
)

// APIError is the structured error object returned by every query-path
// endpoint on failure.
type APIError struct {
	Kind         Kind   `json:"kind"`
	Message      string `json:"message"`
	RetryAfterMs int64  `json:"retry_after_ms,omitempty"`
}

func (e *APIError) Error() string { return e.Message }

// NewValidationError builds a validation-kind APIError.
func NewValidationError(msg string) *APIError {
	return &APIError{Kind: KindValidation, Message: msg}
}

// NewUnavailable builds a service-unavailable APIError with a
// retry-after hint in milliseconds.
func NewUnavailable(msg string, retryAfterMs int64) *APIError {
	return &APIError{Kind: KindUnavailable, Message: msg, RetryAfterMs: retryAfterMs}
}
