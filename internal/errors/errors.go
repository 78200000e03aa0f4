// Package errors provides error code definitions shared across the engine.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase   ErrorCode = "DATABASE_ERROR"
	ErrMigration  ErrorCode = "MIGRATION_FAILED"
	ErrConstraint ErrorCode = "CONSTRAINT_VIOLATION"

	// Dual-write and reconciliation errors
	ErrLocalWriteFailed  ErrorCode = "LOCAL_WRITE_FAILED"
	ErrRemoteUnreachable ErrorCode = "REMOTE_UNREACHABLE"
	ErrRemoteWriteFailed ErrorCode = "REMOTE_WRITE_FAILED"
	ErrSyncPermanent     ErrorCode = "SYNC_FAILED_PERMANENT"
	ErrUnknownEntityType ErrorCode = "UNKNOWN_ENTITY_TYPE"
	ErrSyncInProgress    ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncTimeout       ErrorCode = "SYNC_TIMEOUT"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error carries a specific code, unwrapping as needed.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Retryable reports whether a replay failure with this code should count
// against the retry budget rather than fail the change record outright.
func Retryable(err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		// Unclassified remote failures are retryable by default.
		return true
	}
	switch appErr.Code {
	case ErrUnknownEntityType, ErrValidation, ErrInvalid:
		return false
	default:
		return true
	}
}
