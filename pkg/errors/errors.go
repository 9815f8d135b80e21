package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a domain error carrying its HTTP status and a stable code.
// Details are echoed to clients in the response meta, so they must never hold
// secrets such as OTP codes or password hashes.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on Code so that clones of a predefined error satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors. Conflicts surface as 400 so clients render the message inline.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "insufficient permissions")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "authentication required")
	ErrConflict           = New("CONFLICT", http.StatusBadRequest, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInvalidTransition  = New("INVALID_TRANSITION", http.StatusConflict, "status transition not allowed")
	ErrRateLimited        = New("RATE_LIMITED", http.StatusTooManyRequests, "too many requests")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	if err.Details != nil {
		clone.Details = make(map[string]string, len(err.Details))
		for k, v := range err.Details {
			clone.Details[k] = v
		}
	}
	return &clone
}

// Clonef is Clone with a formatted message.
func Clonef(err *Error, format string, args ...interface{}) *Error {
	return Clone(err, fmt.Sprintf(format, args...))
}

// With returns a copy of e carrying one more detail.
func (e *Error) With(key, value string) *Error {
	clone := Clone(e, "")
	if clone == nil {
		return nil
	}
	if clone.Details == nil {
		clone.Details = make(map[string]string, 1)
	}
	clone.Details[key] = value
	return clone
}

// Transition reports a rejected status change between two named states.
func Transition(from, to string) *Error {
	return Clonef(ErrInvalidTransition, "cannot move application from %s to %s", from, to).
		With("from", from).
		With("to", to)
}

// Validation wraps a validator failure, passing its message through to the caller.
func Validation(err error) *Error {
	if err == nil {
		return nil
	}
	return Wrap(err, ErrValidation.Code, ErrValidation.Status, err.Error())
}
