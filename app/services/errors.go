// Package services holds the business rules: credential flows, order and
// payment status transitions, and role changes. Services receive their
// stores through constructors and return sentinel errors that controllers
// map to HTTP statuses.
package services

import "errors"

var (
	ErrValidation            = errors.New("validation failed")
	ErrNotFound              = errors.New("not found")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrExpiredToken          = errors.New("token expired")
	ErrInvalidOrExpiredOtp   = errors.New("invalid or expired otp")
	ErrInvalidCredential     = errors.New("invalid credential")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrConflict              = errors.New("conflict")
)

// Error pairs a sentinel kind with the message shown to the client.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

func fail(kind error, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Message returns the client-facing text carried by err, or "" when err is
// not a service error.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return ""
}
