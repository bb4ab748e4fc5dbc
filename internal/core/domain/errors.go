package domain

import "errors"

// Error kinds surfaced by the engines. Callers must match with errors.Is
// because engines wrap them with context; handlers map each kind to an HTTP
// status in one place.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrForbidden          = errors.New("forbidden")
	ErrIllegalTransition  = errors.New("illegal state transition")
	ErrIntegrityViolation = errors.New("integrity violation")
	ErrInsufficientFunds  = errors.New("insufficient chama funds")
	ErrConflict           = errors.New("conflict")
	ErrUnavailable        = errors.New("store unavailable")
	ErrInvalidInput       = errors.New("invalid input")
)

// Auth errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// Retryable reports whether the caller may retry the whole operation
// (lock conflicts once, transient store failures with backoff).
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrUnavailable)
}
