package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code for stable testing
type ErrorCode string

// Error codes for different error categories
const (
	// General errors
	ErrUnknown  ErrorCode = "UNKNOWN"
	ErrInternal ErrorCode = "INTERNAL"

	// Identity errors
	ErrParse ErrorCode = "PARSE"

	// Reconciliation errors
	ErrInvariant ErrorCode = "INVARIANT_VIOLATION"

	// Encryption errors
	ErrDecryption ErrorCode = "DECRYPTION"
	ErrEncryption ErrorCode = "ENCRYPTION"

	// Transport errors
	ErrVcs ErrorCode = "VCS"

	// Locking errors
	ErrLockContention ErrorCode = "LOCK_CONTENTION"

	// Status list errors
	ErrStatusList ErrorCode = "STATUS_LIST"

	// Configuration errors
	ErrConfigLoad  ErrorCode = "CONFIG_LOAD"
	ErrConfigValid ErrorCode = "CONFIG_INVALID"

	// Conflict resolution errors
	ErrMergeAborted ErrorCode = "MERGE_ABORTED"
	ErrMergeFailed  ErrorCode = "MERGE_FAILED"
	ErrNoConflict   ErrorCode = "NO_CONFLICT"

	// FileSystem errors
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrFileAccess   ErrorCode = "FILE_ACCESS"
	ErrFileWrite    ErrorCode = "FILE_WRITE"
)

// MicrodotError represents a structured error with code and details
type MicrodotError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Wrapped error
}

// Error implements the error interface
func (e *MicrodotError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *MicrodotError) Unwrap() error {
	return e.Wrapped
}

// Is implements errors.Is interface
func (e *MicrodotError) Is(target error) bool {
	var targetErr *MicrodotError
	if errors.As(target, &targetErr) {
		return e.Code == targetErr.Code
	}
	return false
}

// New creates a new MicrodotError with the given code and message
func New(code ErrorCode, message string) *MicrodotError {
	return &MicrodotError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// Newf creates a new MicrodotError with a formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *MicrodotError {
	return &MicrodotError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with a MicrodotError
func Wrap(err error, code ErrorCode, message string) *MicrodotError {
	if err == nil {
		return nil
	}
	return &MicrodotError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// Wrapf wraps an existing error with a formatted message
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) *MicrodotError {
	if err == nil {
		return nil
	}
	return &MicrodotError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Details: make(map[string]interface{}),
		Wrapped: err,
	}
}

// WithDetail adds a detail to the error
func (e *MicrodotError) WithDetail(key string, value interface{}) *MicrodotError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode checks if an error has a specific error code
func IsErrorCode(err error, code ErrorCode) bool {
	var mdErr *MicrodotError
	if errors.As(err, &mdErr) {
		return mdErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrUnknown if not a MicrodotError
func GetErrorCode(err error) ErrorCode {
	var mdErr *MicrodotError
	if errors.As(err, &mdErr) {
		return mdErr.Code
	}
	return ErrUnknown
}
