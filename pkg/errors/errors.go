package errors

import (
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation         ErrorType = "VALIDATION"
	ErrorTypeNotFound           ErrorType = "NOT_FOUND"
	ErrorTypeSessionBusy        ErrorType = "SESSION_BUSY"
	ErrorTypeUpstream           ErrorType = "UPSTREAM"
	ErrorTypeStorageUnavailable ErrorType = "STORAGE_UNAVAILABLE"
	ErrorTypeStreamAborted      ErrorType = "STREAM_ABORTED"
	ErrorTypeInternal           ErrorType = "INTERNAL"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// Constructor functions for different error types

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewSessionBusy creates an error for a rejected concurrent stream request
func NewSessionBusy(message string) error {
	return &AppError{
		Type:    ErrorTypeSessionBusy,
		Message: message,
	}
}

// NewUpstream creates an error for completion provider failures
func NewUpstream(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeUpstream,
		Message: message,
		Err:     err,
	}
}

// NewStorageUnavailable creates an error for exhausted store retries
func NewStorageUnavailable(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeStorageUnavailable,
		Message: message,
		Err:     err,
	}
}

// NewStreamAborted creates an error for a client-cancelled stream.
// Cancellation is a normal terminal state, not a failure; the type exists so
// callers can tell it apart from upstream errors.
func NewStreamAborted(message string) error {
	return &AppError{
		Type:    ErrorTypeStreamAborted,
		Message: message,
	}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
		}
	}

	// Otherwise, create an internal error
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// Type checking functions

func isType(err error, t ErrorType) bool {
	appErr, ok := err.(*AppError)
	return ok && appErr.Type == t
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound)
}

// IsSessionBusy checks if an error is a session busy error
func IsSessionBusy(err error) bool {
	return isType(err, ErrorTypeSessionBusy)
}

// IsUpstream checks if an error is an upstream completion error
func IsUpstream(err error) bool {
	return isType(err, ErrorTypeUpstream)
}

// IsStorageUnavailable checks if an error is a storage availability error
func IsStorageUnavailable(err error) bool {
	return isType(err, ErrorTypeStorageUnavailable)
}

// IsStreamAborted checks if an error is a stream cancellation
func IsStreamAborted(err error) bool {
	return isType(err, ErrorTypeStreamAborted)
}

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool {
	return isType(err, ErrorTypeInternal)
}
