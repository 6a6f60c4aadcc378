package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across eggmigrate.
type ErrorCode string

// Planning error codes
const (
	ErrCircularDependency ErrorCode = "CIRCULAR_DEPENDENCY"
	ErrProgrammerError    ErrorCode = "PROGRAMMER_ERROR"
	ErrUnknownMigration   ErrorCode = "UNKNOWN_MIGRATION"
	ErrInvalidManifest    ErrorCode = "INVALID_MANIFEST"
)

// Execution error codes
const (
	ErrMigrationFailed ErrorCode = "MIGRATION_FAILED"
	ErrSchemaVersion   ErrorCode = "SCHEMA_VERSION"
	ErrLockHeld        ErrorCode = "LOCK_HELD"
	ErrLockLost        ErrorCode = "LOCK_LOST"
	ErrInternalError   ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Egg     string    `json:"egg,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithEgg records the egg the error relates to.
func (e *Error) WithEgg(name string) *Error {
	e.Egg = name
	return e
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether any error in the chain carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
