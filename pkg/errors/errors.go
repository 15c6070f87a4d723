package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeRateLimit     ErrorType = "rate_limit"
	ErrorTypeBreakerOpen   ErrorType = "breaker_open"
	ErrorTypeInternal      ErrorType = "internal"
	ErrorTypeExternal      ErrorType = "external"
	ErrorTypeTimeout       ErrorType = "timeout"
)

// Error codes surfaced in responses and logs
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeConfiguration = "CONFIGURATION_ERROR"
	CodeRateLimit     = "RATE_LIMIT_EXCEEDED"
	CodeBreakerOpen   = "CIRCUIT_OPEN"
	CodeInternal      = "INTERNAL_ERROR"
	CodeExternal      = "EXTERNAL_SYSTEM_ERROR"
	CodeTimeout       = "TIMEOUT"
	CodeUnknown       = "UNKNOWN_ERROR"
)

// AppError represents an application error with context
type AppError struct {
	Type      ErrorType         `json:"type"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, code, message string) *AppError {
	return &AppError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// Common error constructors
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, CodeValidation, message)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, CodeNotFound, fmt.Sprintf("%s not found", resource))
}

// NewConfigurationError indicates a caller error such as an unknown target or
// method. It is never retried by the gateway.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, CodeConfiguration, message)
}

// NewRateLimitError indicates that a target's rate limiter rejected the call.
// retryAfter is the limiter's estimate of when a slot frees up.
func NewRateLimitError(target string, retryAfter time.Duration) *AppError {
	return NewAppError(ErrorTypeRateLimit, CodeRateLimit,
		fmt.Sprintf("rate limit exceeded for target %s", target)).
		WithDetail("target", target).
		WithDetail("retry_after", retryAfter.String())
}

// NewBreakerOpenError indicates that a target's circuit breaker is open and the
// call was rejected without reaching the target.
func NewBreakerOpenError(target string) *AppError {
	return NewAppError(ErrorTypeBreakerOpen, CodeBreakerOpen,
		fmt.Sprintf("circuit breaker open for target %s", target)).
		WithDetail("target", target)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, CodeInternal, message)
}

func NewExternalError(target, message string) *AppError {
	return NewAppError(ErrorTypeExternal, CodeExternal, message).
		WithDetail("target", target)
}

func NewTimeoutError(operation string) *AppError {
	return NewAppError(ErrorTypeTimeout, CodeTimeout, fmt.Sprintf("%s timed out", operation))
}

// IsType checks if the error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable reports whether the gateway's retry loop may recover from err.
// Breaker-open and configuration failures are terminal; everything else is
// considered transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*AppError); ok {
		switch appErr.Type {
		case ErrorTypeBreakerOpen, ErrorTypeConfiguration, ErrorTypeValidation, ErrorTypeNotFound:
			return false
		}
	}
	return true
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return CodeUnknown
}

// GetType returns the error type if it's an AppError
func GetType(err error) ErrorType {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Type
	}
	return ErrorTypeInternal
}
