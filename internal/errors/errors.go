// Package errors provides error code definitions shared across the sync core.
package errors

import "fmt"

// ErrorCode represents a unique error code surfaced to callers and logs.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrInvalid  ErrorCode = "INVALID_INPUT"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Storage errors. A "durable" queue that silently degrades to memory
	// defeats its purpose, so these are always surfaced to the caller.
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"
	ErrItemNotFound       ErrorCode = "ITEM_NOT_FOUND"

	// Queue delivery errors
	ErrSendTransient ErrorCode = "SEND_TRANSIENT" // 5xx or network failure, retried on next online transition
	ErrSendPermanent ErrorCode = "SEND_PERMANENT" // 4xx, demoted to the dead-letter store

	// Connection monitor errors
	ErrProbeTimeout ErrorCode = "PROBE_TIMEOUT"
	ErrProbeFailed  ErrorCode = "PROBE_FAILED"

	// Realtime channel errors
	ErrRealtimeAuthRejected ErrorCode = "REALTIME_AUTH_REJECTED"
	ErrRealtimeParseFailed  ErrorCode = "REALTIME_PARSE_FAILED"
	ErrRealtimeNotConnected ErrorCode = "REALTIME_NOT_CONNECTED"

	// Credential errors
	ErrNoCredential ErrorCode = "NO_CREDENTIAL"
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

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}
