package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the framework.
type ErrorCode string

// Resolution error codes
const (
	ErrUnknownProcessor ErrorCode = "UNKNOWN_PROCESSOR"
	ErrDependencyCycle  ErrorCode = "DEPENDENCY_CYCLE"
)

// Execution error codes
const (
	ErrProcessorFailed ErrorCode = "PROCESSOR_FAILED"
	ErrWorkflowPanic   ErrorCode = "WORKFLOW_PANIC"
)

// Lifecycle error codes
const (
	ErrWorkflowNotFound  ErrorCode = "WORKFLOW_NOT_FOUND"
	ErrWorkflowCancelled ErrorCode = "WORKFLOW_CANCELLED"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrInvalidDefinition ErrorCode = "INVALID_DEFINITION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Processor string    `json:"processor,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithProcessor records the processor the error refers to.
func (e *Error) WithProcessor(name string) *Error {
	e.Processor = name
	return e
}

// UnknownProcessorError reports a processor name missing from the registry.
func UnknownProcessorError(name string) *Error {
	return NewError(ErrUnknownProcessor, fmt.Sprintf("unknown processor: %s", name)).WithProcessor(name)
}

// CycleError reports a dependency cycle that passes through name.
func CycleError(name string) *Error {
	return NewError(ErrDependencyCycle, fmt.Sprintf("dependency cycle detected at processor: %s", name)).WithProcessor(name)
}

// GetErrorCode extracts the error code from an error chain.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && GetErrorCode(err) == code
}
