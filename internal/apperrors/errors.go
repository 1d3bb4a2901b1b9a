package apperrors

import (
	"errors"
	"fmt"
)

// ErrorType classifies failures surfaced by the core.
type ErrorType string

const (
	// ErrorTypeValidation indicates a missing or malformed request field
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeNotFound indicates a referenced entity does not exist
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeForbidden indicates the actor may not touch the entity
	ErrorTypeForbidden ErrorType = "FORBIDDEN"

	// ErrorTypeStorage indicates the persistence layer failed
	ErrorTypeStorage ErrorType = "STORAGE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Fields  map[string]string
	Err     error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

func Validation(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// ValidationFields creates a validation error carrying per-field messages.
func ValidationFields(message string, fields map[string]string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message, Fields: fields}
}

func NotFound(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

func Forbidden(message string) *AppError {
	return &AppError{Type: ErrorTypeForbidden, Message: message}
}

// Storage wraps a driver or database failure.
func Storage(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeStorage, Message: message, Err: err}
}

// TypeOf returns the type of the first AppError in err's chain, or "" if there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}
