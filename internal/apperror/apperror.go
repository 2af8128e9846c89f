// Package apperror defines the error taxonomy shared by every layer.
//
// Services and repositories return *AppError values (usually wrapped with
// fmt.Errorf("...: %w", err)); the HTTP layer maps the sentinel at the bottom
// of the chain to a status code exactly once.
//
//	ErrValidation   → 400  missing or malformed input
//	ErrConflict     → 400  duplicate username or box ID
//	ErrUnauthorized → 401  missing/invalid credential, bad login
//	ErrForbidden    → 403
//	ErrNotFound     → 404  id not owned by the caller
//	anything else   → 500
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("Validation Error")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message, shown verbatim by the UI
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NotFound reports a missing resource, e.g. NotFound("Customer") → "Customer not found".
// The id is deliberately not echoed: a record owned by another user is
// indistinguishable from one that does not exist.
func NotFound(resource string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// Conflict reports a uniqueness violation on field.
func Conflict(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
	}
}

// Unauthorized returns an AppError for a missing or rejected credential.
// HTTP handlers map this to 401 Unauthorized.
func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}
