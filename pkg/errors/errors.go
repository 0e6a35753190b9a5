package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

// Error codes used across the 2FA core
const (
	// Generic errors
	ErrCodeInternal      ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	ErrCodeConflict      ErrorCode = "CONFLICT"

	// Secret provisioning errors
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"

	// Verification errors
	ErrCodeInvalidToken    ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidCode     ErrorCode = "INVALID_CODE"
	ErrCodeCodeAlreadyUsed ErrorCode = "CODE_ALREADY_USED"
	ErrCodeNotEnrolled     ErrorCode = "NOT_ENROLLED"

	// Rate limiting
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Recovery / disable errors
	ErrCodeInvalidRecoveryToken ErrorCode = "INVALID_RECOVERY_TOKEN"
	ErrCodeRecoveryTokenUsed    ErrorCode = "RECOVERY_TOKEN_USED"

	// State machine errors
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with formatted message
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
// Returns ErrCodeInternal if the error is not a structured Error.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// GetDetails extracts the details from an error.
// Returns nil if the error is not a structured Error.
func GetDetails(err error) map[string]interface{} {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput:
		return http.StatusBadRequest

	case ErrCodeInvalidToken, ErrCodeInvalidCode, ErrCodeInvalidRecoveryToken:
		return http.StatusUnauthorized

	case ErrCodeNotEnrolled, ErrCodeCodeAlreadyUsed, ErrCodeRecoveryTokenUsed:
		return http.StatusForbidden

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeConflict, ErrCodeAlreadyExists, ErrCodeInvalidState:
		return http.StatusConflict

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	case ErrCodeGenerationFailed, ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// Common error constructors

// NotFound creates a "not found" error
func NotFound(resourceType, identifier string) *Error {
	return Newf(ErrCodeNotFound, "%s not found: %s", resourceType, identifier)
}

// InvalidInput creates an "invalid input" error
func InvalidInput(field, reason string) *Error {
	return New(ErrCodeInvalidInput, fmt.Sprintf("invalid %s: %s", field, reason))
}

// Internal creates an "internal error"
func Internal(message string) *Error {
	return New(ErrCodeInternal, message)
}

// RateLimitExceeded creates a "rate limit exceeded" error
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}
