package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a namespaced error code for crucible errors.
type ErrorCode string

// Configuration error codes
const (
	CONFIG_LOAD_FAILED       ErrorCode = "CONFIG_LOAD_FAILED"
	CONFIG_PARSE_FAILED      ErrorCode = "CONFIG_PARSE_FAILED"
	CONFIG_VALIDATION_FAILED ErrorCode = "CONFIG_VALIDATION_FAILED"
	CONFIG_NOT_FOUND         ErrorCode = "CONFIG_NOT_FOUND"
)

// Database error codes
const (
	DB_OPEN_FAILED      ErrorCode = "DB_OPEN_FAILED"
	DB_MIGRATION_FAILED ErrorCode = "DB_MIGRATION_FAILED"
	DB_QUERY_FAILED     ErrorCode = "DB_QUERY_FAILED"
	DB_CONNECTION_LOST  ErrorCode = "DB_CONNECTION_LOST"
)

// Engine error codes. These form the error taxonomy of the orchestration
// engine and are shared by every package that raises them.
const (
	// UNSUPPORTED_INPUT_TYPE is raised when a transformer cannot handle the
	// data type of the content it was given.
	UNSUPPORTED_INPUT_TYPE ErrorCode = "UNSUPPORTED_INPUT_TYPE"

	// MALFORMED_SCORER_RESPONSE is raised when a scorer reply is not JSON or
	// lacks a required key.
	MALFORMED_SCORER_RESPONSE ErrorCode = "MALFORMED_SCORER_RESPONSE"

	// TARGET_UNAVAILABLE is raised on transport or auth failures reaching a target.
	TARGET_UNAVAILABLE ErrorCode = "TARGET_UNAVAILABLE"

	// PERSISTENCE_CONFLICT is raised when inserting an identifier that already exists.
	PERSISTENCE_CONFLICT ErrorCode = "PERSISTENCE_CONFLICT"

	// TEMPLATE_RENDER_ERROR is raised for missing or surplus template parameters.
	TEMPLATE_RENDER_ERROR ErrorCode = "TEMPLATE_RENDER_ERROR"
)

// Validation error codes
const (
	VALIDATION_FAILED ErrorCode = "VALIDATION_FAILED"
	INVALID_ARGUMENT  ErrorCode = "INVALID_ARGUMENT"
)

// CrucibleError represents a structured error with error code, message, and optional cause.
// It supports error wrapping and retryability hints for error handling logic.
type CrucibleError struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Cause     error
}

// Error implements the error interface, returning a formatted error message.
// Format: "[CODE] message" or "[CODE] message: cause" if cause exists.
func (e *CrucibleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error unwrapping chains.
func (e *CrucibleError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error by error code.
// Returns true if target is a CrucibleError with the same Code.
func (e *CrucibleError) Is(target error) bool {
	var other *CrucibleError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// NewError creates a new non-retryable CrucibleError with the given code and message.
func NewError(code ErrorCode, message string) *CrucibleError {
	return &CrucibleError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     nil,
	}
}

// NewRetryableError creates a new retryable CrucibleError with the given code and message.
// Use this for transient errors that may succeed on retry (e.g., malformed JSON from a model).
func NewRetryableError(code ErrorCode, message string) *CrucibleError {
	return &CrucibleError{
		Code:      code,
		Message:   message,
		Retryable: true,
		Cause:     nil,
	}
}

// WrapError creates a new non-retryable CrucibleError that wraps an existing error.
func WrapError(code ErrorCode, message string, cause error) *CrucibleError {
	return &CrucibleError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Cause:     cause,
	}
}

// HasCode reports whether any CrucibleError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &CrucibleError{Code: code})
}

// IsRetryable reports whether the first CrucibleError in err's chain is retryable.
func IsRetryable(err error) bool {
	var ce *CrucibleError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}
