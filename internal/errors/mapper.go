package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

// Error is the closed error taxonomy surfaced by services.
// Code is stable and machine-readable; Status drives the HTTP mapping.
type Error struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidArgument rejects bad caller input before any work begins.
func InvalidArgument(msg string) error {
	return &Error{Code: "INVALID_ARGUMENT", Message: msg, Status: http.StatusBadRequest}
}

// NotFound covers both "does not exist" and "exists but not visible to the
// caller" so that group existence is never leaked to non-members.
func NotFound(msg string) error {
	return &Error{Code: "NOT_FOUND", Message: msg, Status: http.StatusNotFound}
}

// Conflict signals a lifecycle precondition violation (terminal group,
// membership not in the expected pre-state).
func Conflict(msg string) error {
	return &Error{Code: "CONFLICT", Message: msg, Status: http.StatusConflict}
}

// Unauthorized signals a missing or invalid credential.
func Unauthorized(msg string) error {
	return &Error{Code: "UNAUTHORIZED", Message: msg, Status: http.StatusUnauthorized}
}

// Map converts repo/infra errors into the service taxonomy.
// Keeps the service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return NotFound("record not found")

	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Conflict("record already exists")

	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: "DEADLINE_EXCEEDED", Message: "request timed out", Status: http.StatusGatewayTimeout, Err: err}

	case errors.Is(err, context.Canceled):
		return &Error{Code: "CANCELED", Message: "request was canceled", Status: 499, Err: err}

	default:
		return &Error{Code: "INTERNAL", Message: "internal error", Status: http.StatusInternalServerError, Err: err}
	}
}

// AsError unwraps any error to the taxonomy, mapping unknown errors to
// INTERNAL. Used by the HTTP error middleware.
func AsError(err error) *Error {
	mapped := Map(err)
	var e *Error
	if errors.As(mapped, &e) {
		return e
	}
	return &Error{Code: "INTERNAL", Message: "internal error", Status: http.StatusInternalServerError, Err: err}
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
