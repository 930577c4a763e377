package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application error with additional context
type AppError struct {
	Code    string // Error code for client
	Message string // Human-readable message
	Err     error  // Underlying error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodePersistenceFailure  = "PERSISTENCE_FAILURE"
	ErrCodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	ErrCodeSignatureMismatch   = "SIGNATURE_MISMATCH"
	ErrCodeInsufficientBalance = "INSUFFICIENT_BALANCE"
)

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Validation creates a validation error. Validation failures are rejected
// before any persistence happens; callers can rely on the absence of side
// effects.
func Validation(message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
	}
}

// NotFound creates a not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// Unauthorized creates an unauthorized error
func Unauthorized(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUnauthorized,
		Message: message,
	}
}

// Conflict creates a conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Code:    ErrCodeConflict,
		Message: message,
	}
}

// Internal creates an internal error
func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// PersistenceFailure wraps a storage error. The entry never transitioned
// past pending and the balance is untouched, so the caller may retry with
// the same idempotency key.
func PersistenceFailure(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodePersistenceFailure,
		Message: message,
		Err:     err,
	}
}

// ConcurrencyConflict signals a lost race for the per-account lock after the
// internal retry budget was exhausted.
func ConcurrencyConflict(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConcurrencyConflict,
		Message: message,
		Err:     err,
	}
}

// SignatureMismatch creates a verification error surfaced from VerifyEntry
func SignatureMismatch(message string) *AppError {
	return &AppError{
		Code:    ErrCodeSignatureMismatch,
		Message: message,
	}
}

// InsufficientBalance creates an insufficient balance error
func InsufficientBalance(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInsufficientBalance,
		Message: message,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetAppError extracts an AppError from an error
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries the given AppError code
func HasCode(err error, code string) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
