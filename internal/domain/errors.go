// Package domain defines core types, interfaces, and errors for the dynamic
// query pipeline.
package domain

import (
	"fmt"
	"strings"
)

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// AccessDeniedError indicates the caller could not be tied to a tenant.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// GenerationError indicates the text-generation service returned nothing
// usable (call failure, empty or malformed output).
type GenerationError struct {
	Message string
	Err     error
}

func (e *GenerationError) Error() string { return e.Message }

func (e *GenerationError) Unwrap() error { return e.Err }

// ValidationError indicates invalid input or SQL rejected by the validator.
// Reasons carries the individual validator messages when there is more than one.
type ValidationError struct {
	Message string
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return e.Message
	}
	return e.Message + ": " + strings.Join(e.Reasons, "; ")
}

// ExecutionError carries an already-sanitized driver failure. Message is safe
// to show to operators.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// DeliveryError indicates the report could not be handed to the mailer.
type DeliveryError struct {
	Message string
	Err     error
}

func (e *DeliveryError) Error() string { return e.Message }

func (e *DeliveryError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrGeneration creates a GenerationError wrapping the underlying cause.
func ErrGeneration(err error, format string, args ...interface{}) *GenerationError {
	return &GenerationError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ErrDelivery creates a DeliveryError wrapping the underlying cause.
func ErrDelivery(err error, format string, args ...interface{}) *DeliveryError {
	return &DeliveryError{Message: fmt.Sprintf(format, args...), Err: err}
}
