// Package apperr defines the closed set of error kinds surfaced by the
// service layer. Handlers dispatch on Kind instead of matching message
// strings, and the message is always safe to return to a client.
package apperr

import (
	"errors"
	"fmt"
)

// Kind identifies an error category.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidToken
	KindSessionExpired
	KindNotEnrolled
	KindNotFound
	KindNotAuthorized
	KindAlreadyExists
	KindServiceUnavailable
	KindEmailDelivery
	KindRateLimited
)

// Error is the error type returned by all services.
type Error struct {
	Kind    Kind
	Message string
	// Err carries internal detail for logging; it is never serialized.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error that keeps err as internal detail.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Internal wraps an unexpected error. The client-facing message stays generic.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

// KindOf extracts the kind from err, defaulting to KindInternal so that
// uncategorized errors fail closed.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
