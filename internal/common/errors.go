package common

import (
	"errors"
	"fmt"
	"strings"
)

// Error types for better error classification
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeTimeout       ErrorType = "timeout"
	ErrorTypeNotFound      ErrorType = "not_found"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeInternal      ErrorType = "internal"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Err.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// IsRetryable determines if an error should be retried
func (e *AppError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeStorage:
		return true
	case ErrorTypeValidation, ErrorTypeConfiguration, ErrorTypeNotFound:
		return false
	default:
		return true
	}
}

// Error constructors
func NewValidationError(field, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Field:   field,
		Message: message,
	}
}

func NewConfigurationError(field, message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConfiguration,
		Field:   field,
		Message: message,
	}
}

func NewNetworkError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeNetwork,
		Message: message,
		Err:     err,
	}
}

func NewTimeoutError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeTimeout,
		Message: message,
		Err:     err,
	}
}

func NewNotFoundError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Err:     err,
	}
}

func NewStorageError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeStorage,
		Message: message,
		Err:     err,
	}
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// ErrorClassifier provides centralized error classification
type ErrorClassifier struct{}

func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError classifies an error and returns an AppError
func (c *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	errStr := strings.ToLower(err.Error())

	// Permanent errors (non-retryable)
	permanentErrors := []string{
		"unknown task type",
		"scan_id is required",
		"task type is required",
		"no targets",
		"cannot unmarshal",
		"invalid character",
		"permission denied",
		"unauthorized",
		"forbidden",
		"not found",
		"invalid",
	}

	for _, permanentErr := range permanentErrors {
		if strings.Contains(errStr, permanentErr) {
			return NewValidationError("", err.Error())
		}
	}

	if strings.Contains(errStr, "context deadline exceeded") || strings.Contains(errStr, "timeout") {
		return NewTimeoutError(err.Error(), err)
	}

	// Network errors (retryable)
	retryableErrors := []string{
		"connection",
		"network",
		"temporary",
		"rate limit",
		"throttle",
		"service unavailable",
		"internal server error",
		"bad gateway",
		"gateway timeout",
		"context canceled",
	}

	for _, retryableErr := range retryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return NewNetworkError(err.Error(), err)
		}
	}

	return NewInternalError(err.Error(), err)
}

// IsRetryableError determines if an error should be retried
func (c *ErrorClassifier) IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	return c.ClassifyError(err).IsRetryable()
}
