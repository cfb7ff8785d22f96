package domain

import (
	"context"
	"errors"
)

// Common domain errors
var (
	// ErrNotFound is returned when a requested account or transaction is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation is returned when input validation fails (bad currency, malformed id)
	ErrValidation = errors.New("validation error")
	// ErrTimeout is returned when no reply arrived before the deadline
	ErrTimeout = errors.New("reply timeout")
	// ErrMalformedReply is returned when a reply is present but has the wrong shape
	ErrMalformedReply = errors.New("malformed reply")
	// ErrTransport is returned when the message channel or the cache cannot be reached
	ErrTransport = errors.New("transport failure")
	// ErrRemovalFailed is returned when an account could not be removed because its
	// transactions were not purged
	ErrRemovalFailed = errors.New("removal failed")
	// ErrConflict is returned when a compare-and-swap update lost a race
	ErrConflict = errors.New("concurrent modification")
	// ErrInvalidTransition is returned when a transaction status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Kind classifies an error for propagation across service boundaries.
type Kind string

const (
	KindNotFound          Kind = "NotFound"
	KindAlreadyExists     Kind = "AlreadyExists"
	KindTimeout           Kind = "Timeout"
	KindMalformedReply    Kind = "MalformedReply"
	KindTransportFailure  Kind = "TransportFailure"
	KindValidationFailure Kind = "ValidationFailure"
	KindRemovalFailed     Kind = "RemovalFailed"
	KindConflict          Kind = "Conflict"
	KindInternal          Kind = "Internal"
)

// KindOf returns the taxonomy kind of err. Unknown errors are Internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrMalformedReply):
		return KindMalformedReply
	case errors.Is(err, ErrTransport):
		return KindTransportFailure
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidTransition):
		return KindValidationFailure
	case errors.Is(err, ErrRemovalFailed):
		return KindRemovalFailed
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// IsRetryable reports whether the caller may safely retry the operation that
// produced err.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindTransportFailure, KindConflict:
		return true
	default:
		return false
	}
}
