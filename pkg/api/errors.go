package api

import (
	"errors"
	"fmt"
)

// Failure taxonomy for REST calls. Every failure surfaces as a typed error
// value wrapping one of these sentinels; nothing panics into the caller.
var (
	// ErrNetwork covers connectivity failures and timeouts. Transient,
	// retryable.
	ErrNetwork = errors.New("network error")
	// ErrUnauthorized means the backend rejected the token (401/403).
	// Terminal for the current token; callers trigger re-authentication
	// instead of retrying.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is a 404 for the addressed resource.
	ErrNotFound = errors.New("not found")
	// ErrServer covers 5xx responses and backend-reported failures.
	// Retryable with backoff.
	ErrServer = errors.New("server error")
	// ErrProtocol means the response body could not be interpreted.
	ErrProtocol = errors.New("protocol error")
	// ErrInvalidArgument means the caller passed out-of-range parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Error is the typed failure returned by all Client operations.
type Error struct {
	kind    error
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%v (status %d): %s", e.kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.kind, e.Message)
}

// Unwrap exposes the taxonomy sentinel for errors.Is.
func (e *Error) Unwrap() error {
	return e.kind
}

// Unauthorized reports whether the error means the current token is invalid.
func (e *Error) Unauthorized() bool {
	return errors.Is(e.kind, ErrUnauthorized)
}

func newError(kind error, status int, message string) *Error {
	return &Error{kind: kind, Status: status, Message: message}
}

// classifyStatus maps a non-2xx HTTP status onto the taxonomy.
func classifyStatus(status int) error {
	switch {
	case status == 401 || status == 403:
		return ErrUnauthorized
	case status == 404:
		return ErrNotFound
	default:
		return ErrServer
	}
}
