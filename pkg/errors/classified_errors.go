// Package errors defines the error taxonomy shared by the services and the
// HTTP layer: every failure a caller can observe belongs to exactly one class.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorClass represents the classification of an error
type ErrorClass int

const (
	// ClassInternal covers storage, connectivity and unexpected failures
	ClassInternal ErrorClass = iota
	// ClassUnauthorized indicates a missing or invalid credential
	ClassUnauthorized
	// ClassValidation indicates malformed input
	ClassValidation
	// ClassNotFound indicates an absent entity or an ownership mismatch
	ClassNotFound
)

// String returns the machine-readable status used in error payloads
func (c ErrorClass) String() string {
	switch c {
	case ClassUnauthorized:
		return "unauthorized"
	case ClassValidation:
		return "validation_error"
	case ClassNotFound:
		return "not_found"
	default:
		return "internal_error"
	}
}

// HTTPStatus maps a class onto a status code
func (c ErrorClass) HTTPStatus() int {
	switch c {
	case ClassUnauthorized:
		return http.StatusUnauthorized
	case ClassValidation:
		return http.StatusBadRequest
	case ClassNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ClassifiedError is an error with a class and operation context
type ClassifiedError struct {
	Code      string     `json:"code"`
	Message   string     `json:"message"`
	Class     ErrorClass `json:"class"`
	Operation string     `json:"operation,omitempty"`
	Details   any        `json:"details,omitempty"`

	cause error
}

// Error implements the error interface
func (e *ClassifiedError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Code, e.Operation, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Operation, e.Message)
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.cause
}

// WithDetails attaches caller-visible details
func (e *ClassifiedError) WithDetails(details any) *ClassifiedError {
	e.Details = details
	return e
}

// New creates a new classified error
func New(code, operation, message string, class ErrorClass) *ClassifiedError {
	return &ClassifiedError{
		Code:      code,
		Message:   message,
		Class:     class,
		Operation: operation,
	}
}

// Wrap classifies an existing error
func Wrap(err error, code, operation, message string, class ErrorClass) *ClassifiedError {
	e := New(code, operation, message, class)
	e.cause = err
	return e
}

// NewUnauthorizedError reports a guard failure
func NewUnauthorizedError(operation, message string) *ClassifiedError {
	return New("UNAUTHORIZED", operation, message, ClassUnauthorized)
}

// NewValidationError reports malformed input
func NewValidationError(operation, message string) *ClassifiedError {
	return New("VALIDATION_ERROR", operation, message, ClassValidation)
}

// NewNotFoundError reports an absent or foreign entity
func NewNotFoundError(operation, resource string) *ClassifiedError {
	return New("NOT_FOUND", operation, resource+" not found", ClassNotFound)
}

// NewInternalError wraps an unexpected failure
func NewInternalError(operation string, err error) *ClassifiedError {
	return Wrap(err, "INTERNAL_ERROR", operation, "internal error", ClassInternal)
}

// ClassOf returns the class of err, treating unclassified errors as internal
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if stderrors.As(err, &ce) {
		return ce.Class
	}
	return ClassInternal
}

// IsClass reports whether err belongs to class
func IsClass(err error, class ErrorClass) bool {
	return err != nil && ClassOf(err) == class
}

// As exposes the classified error inside err, if any
func As(err error) (*ClassifiedError, bool) {
	var ce *ClassifiedError
	ok := stderrors.As(err, &ce)
	return ce, ok
}
