// Package errors defines the sentinel errors shared across the projector
// and a wrapper type carrying operator-facing detail.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrIndexUnavailable = errors.New("search index unavailable")
	ErrStoreUnavailable = errors.New("projection store unavailable")
	ErrRecordNotFound   = errors.New("projection record not found")
	ErrRecordDeleted    = errors.New("projection record deleted")
	ErrMalformedEvent   = errors.New("malformed content event")
	ErrBatchAborted     = errors.New("batch aborted")
	ErrInternal         = errors.New("internal error")
)

// AppError pairs a sentinel with a human-readable message so callers can
// match with errors.Is while operators still see detail.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New wraps a sentinel with a message.
func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

// Newf wraps a sentinel with a formatted message.
func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// IsRetryable reports whether err represents a transient dependency
// failure worth redelivering the batch for. Malformed events are not
// retryable; they are skipped at reduction time instead.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrIndexUnavailable) || errors.Is(err, ErrStoreUnavailable)
}
