package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure domains
type ErrorType string

const (
	ErrorTypeValidation  ErrorType = "validation"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeConflict    ErrorType = "conflict"
	ErrorTypeInternal    ErrorType = "internal"
	ErrorTypePersistence ErrorType = "persistence"
	ErrorTypeDetector    ErrorType = "detector"
	ErrorTypeAction      ErrorType = "action"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
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
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConflict,
		Code:      "CONFLICT",
		Message:   message,
		Retryable: false,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

// NewPersistenceError indicates storage was unavailable or rejected a write.
// Surfaced synchronously to ingestion callers; logged and skipped in sweeps.
func NewPersistenceError(operation string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypePersistence,
		Code:      "PERSISTENCE_FAILURE",
		Message:   fmt.Sprintf("storage operation %s failed", operation),
		Cause:     cause,
		Retryable: true,
		Details:   map[string]interface{}{"operation": operation},
	}
}

// NewDetectorError wraps a failure inside an individual detector. Callers
// catch these per-detector so siblings keep running.
func NewDetectorError(detector string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeDetector,
		Code:      "DETECTOR_FAILURE",
		Message:   fmt.Sprintf("detector %s failed", detector),
		Cause:     cause,
		Retryable: false,
		Details:   map[string]interface{}{"detector": detector},
	}
}

// NewActionError wraps a failed block/escalate/notify side effect. Never
// propagated to the dispatch caller; logged and counted only.
func NewActionError(action string, cause error) *AppError {
	return &AppError{
		Type:      ErrorTypeAction,
		Code:      "ACTION_FAILURE",
		Message:   fmt.Sprintf("response action %s failed", action),
		Cause:     cause,
		Retryable: false,
		Details:   map[string]interface{}{"action": action},
	}
}

// Predefined common errors
var (
	ErrInvalidEvent   = NewValidationError("INVALID_EVENT", "Invalid activity event")
	ErrMissingSubject = NewValidationError("MISSING_SUBJECT", "Event has no subject id")
	ErrAlertNotFound  = NewNotFoundError("monitoring alert")
)

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
