package model

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorKind classifies an application error for transport mapping.
// The set is closed; handlers map kinds to HTTP statuses and never
// branch on error strings.
type ErrorKind string

const (
	KindInvalidInput    ErrorKind = "invalid_input"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindForbidden       ErrorKind = "forbidden"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindRateLimited     ErrorKind = "rate_limited"
	KindCooldown        ErrorKind = "cooldown"
	KindBlocked         ErrorKind = "blocked"
	KindExpired         ErrorKind = "expired"
	KindTransientStore  ErrorKind = "transient_store"
	KindInternal        ErrorKind = "internal"
)

// FieldError pinpoints a validation failure to a single request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed application error that crosses the service →
// handler boundary. Message is user-facing and must stay free of
// hashes, tokens, and other secret material.
type Error struct {
	Kind    ErrorKind
	Message string
	Fields  []FieldError
	RetryAt time.Time // deadline for Cooldown and RateLimited errors
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logs without changing
// the user-facing message.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// NewError constructs a typed application error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf constructs a typed application error with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Invalid constructs an InvalidInput error with field details.
func Invalid(message string, fields ...FieldError) *Error {
	return &Error{Kind: KindInvalidInput, Message: message, Fields: fields}
}

// CooldownUntil constructs a Cooldown error carrying the retry deadline.
func CooldownUntil(retryAt time.Time, message string) *Error {
	return &Error{Kind: KindCooldown, Message: message, RetryAt: retryAt}
}

// KindOf extracts the ErrorKind from err, walking the wrap chain.
// Non-application errors report KindInternal.
func KindOf(err error) ErrorKind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// AsError extracts the *Error from a wrap chain, if present.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps an error kind to its HTTP status code.
func (k ErrorKind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindBlocked:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindExpired:
		return http.StatusConflict
	case KindRateLimited, KindCooldown:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
