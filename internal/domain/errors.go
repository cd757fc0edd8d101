// Package domain defines core types, interfaces, and errors for the query gateway.
package domain

import "fmt"

// ValidationError indicates that generated SQL failed a safety check, or that
// request input was malformed. Always carries a user-actionable message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AccessDeniedError indicates the principal lacks access to a table or resource.
type AccessDeniedError struct {
	Message string
}

func (e *AccessDeniedError) Error() string { return e.Message }

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ExecutionError indicates the database failed to run a validated statement
// (timeout, connection loss, or a malformed statement the validator missed).
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// UpstreamError indicates the external SQL-generation collaborator failed.
// Callers are expected to fall back to rule-based generation before
// surfacing this to the user.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string { return e.Message }

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrAccessDenied creates an AccessDeniedError with a formatted message.
func ErrAccessDenied(format string, args ...interface{}) *AccessDeniedError {
	return &AccessDeniedError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrUpstream creates an UpstreamError with a formatted message.
func ErrUpstream(format string, args ...interface{}) *UpstreamError {
	return &UpstreamError{Message: fmt.Sprintf(format, args...)}
}
