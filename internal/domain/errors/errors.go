package errors

import (
	"errors"
	"fmt"
)

// Error types for the report engine domains
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeGeneration  ErrorType = "generation"
	ErrorTypeEncoding    ErrorType = "encoding"
	ErrorTypeDelivery    ErrorType = "delivery"
	ErrorTypeConcurrency ErrorType = "concurrency"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypeExternal    ErrorType = "external"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors

func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

// NewGenerationError marks a failure in the report generation step.
// Generation failures move the owning execution to FAILED and are not retried.
func NewGenerationError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeGeneration,
		Code:       "GENERATION_FAILED",
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
	}
}

func NewEncodingError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeEncoding,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 500,
	}
}

// NewDeliveryError creates a delivery failure. Transient failures
// (network, timeout) are retryable per the dispatcher's backoff policy;
// permanent failures (bad config) are not.
func NewDeliveryError(code, message string, transient bool) *AppError {
	return &AppError{
		Type:       ErrorTypeDelivery,
		Code:       code,
		Message:    message,
		Retryable:  transient,
		StatusCode: 502,
	}
}

// NewConcurrencyError marks a duplicate trigger for an already-handled
// schedule period. The scheduler swallows these; they are an expected
// de-duplication outcome, not a user-facing failure.
func NewConcurrencyError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeConcurrency,
		Code:       "DUPLICATE_TRIGGER",
		Message:    message,
		Retryable:  false,
		StatusCode: 409,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsNotFound reports whether the error is a not-found error
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
