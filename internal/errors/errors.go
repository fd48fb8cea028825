package errors

import (
	"errors"
	"fmt"
)

// ErrCode represents an error code
type ErrCode string

const (
	ErrCodeValidation           ErrCode = "VALIDATION"
	ErrCodeSourceUnavailable    ErrCode = "SOURCE_UNAVAILABLE"
	ErrCodeConsistencyViolation ErrCode = "CONSISTENCY_VIOLATION"
	ErrCodeStorage              ErrCode = "STORAGE"
	ErrCodeNotFound             ErrCode = "NOT_FOUND"
	ErrCodeInternal             ErrCode = "INTERNAL_ERROR"
)

// ErrNoActivity is returned by collectors when a repository has no activity on a date
var ErrNoActivity = errors.New("no activity")

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError creates an error for input rejected before any I/O
func NewValidationError(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewSourceUnavailableError creates an error for a repository or date that could not be fetched
func NewSourceUnavailableError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeSourceUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewConsistencyViolation creates an error for a broken internal invariant
func NewConsistencyViolation(format string, args ...any) *AppError {
	return &AppError{
		Code:    ErrCodeConsistencyViolation,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewStorageError creates an error for a failed persistence operation
func NewStorageError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeStorage,
		Message: message,
		Err:     err,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or ErrCodeInternal
func CodeOf(err error) ErrCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

func hasCode(err error, code ErrCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsValidation checks if the error is a validation error
func IsValidation(err error) bool {
	return hasCode(err, ErrCodeValidation)
}

// IsSourceUnavailable checks if the error is a source unavailable error
func IsSourceUnavailable(err error) bool {
	return hasCode(err, ErrCodeSourceUnavailable)
}

// IsConsistencyViolation checks if the error is a consistency violation
func IsConsistencyViolation(err error) bool {
	return hasCode(err, ErrCodeConsistencyViolation)
}

// IsStorage checks if the error is a storage error
func IsStorage(err error) bool {
	return hasCode(err, ErrCodeStorage)
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsNoActivity checks if a collector reported no activity
func IsNoActivity(err error) bool {
	return errors.Is(err, ErrNoActivity)
}
