// Package apperr defines the error taxonomy shared by the booking engine,
// the outbox dispatcher and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an item, booking or user does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is returned for malformed input such as inverted ranges.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when the request collides with existing state.
	ErrConflict = errors.New("conflict")

	// ErrForbidden is returned when the principal may not perform the action.
	ErrForbidden = errors.New("forbidden")

	// ErrTransient marks a retryable failure, typically a notifier call.
	ErrTransient = errors.New("transient failure")

	// ErrPermanent marks a failure that will not be retried again.
	ErrPermanent = errors.New("permanent failure")
)

func NotFound(format string, args ...any) error {
	return wrap(ErrNotFound, format, args...)
}

func Validation(format string, args ...any) error {
	return wrap(ErrValidation, format, args...)
}

func Conflict(format string, args ...any) error {
	return wrap(ErrConflict, format, args...)
}

func Forbidden(format string, args ...any) error {
	return wrap(ErrForbidden, format, args...)
}

// Transient wraps cause so that errors.Is matches both ErrTransient and cause.
func Transient(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, cause)
}

func Permanent(cause error) error {
	if cause == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, cause)
}

func wrap(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// Message strips the kind prefix, leaving the human readable detail.
func Message(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, kind := range []error{ErrNotFound, ErrValidation, ErrConflict, ErrForbidden} {
		prefix := kind.Error() + ": "
		if errors.Is(err, kind) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
