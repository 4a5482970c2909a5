package errors

import (
	stderrors "errors"
	"fmt"
	"runtime"
)

// ErrorType classifies failures so transports can map them to status codes.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "validation"
	ErrorTypeStorage       ErrorType = "storage"
	ErrorTypeNetwork       ErrorType = "network"
	ErrorTypeCodec         ErrorType = "codec"
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeState         ErrorType = "state"
)

// StructuredError provides rich error context
type StructuredError struct {
	Type      ErrorType
	Operation string
	Message   string
	Cause     error
	Context   map[string]any
	Stack     []uintptr
}

// Error implements the error interface
func (e *StructuredError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Operation, e.Message)
}

// Unwrap returns the underlying cause
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// New creates a new structured error
func New(errType ErrorType, operation, message string) *StructuredError {
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Context:   make(map[string]any),
		Stack:     captureStack(),
	}
}

// Wrap wraps an existing error with additional context. A nil err yields nil.
func Wrap(err error, errType ErrorType, operation, message string) error {
	if err == nil {
		return nil
	}
	return &StructuredError{
		Type:      errType,
		Operation: operation,
		Message:   message,
		Cause:     err,
		Context:   make(map[string]any),
		Stack:     captureStack(),
	}
}

// WithContext adds context information to an error
func (e *StructuredError) WithContext(key string, value any) *StructuredError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// TypeOf returns the type of the outermost StructuredError in err's chain,
// or the empty string when there is none.
func TypeOf(err error) ErrorType {
	var se *StructuredError
	if stderrors.As(err, &se) {
		return se.Type
	}
	return ""
}

// IsType reports whether err carries a StructuredError of the given type.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

func captureStack() []uintptr {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])
	return pcs[:n]
}

// NewValidationError creates a validation error
func NewValidationError(operation, message string) *StructuredError {
	return New(ErrorTypeValidation, operation, message)
}

// NewStateError creates an error for operations rejected by round state.
func NewStateError(operation, message string) *StructuredError {
	return New(ErrorTypeState, operation, message)
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(operation, message string) *StructuredError {
	return New(ErrorTypeConfiguration, operation, message)
}

func WrapValidationError(err error, operation, message string) error {
	return Wrap(err, ErrorTypeValidation, operation, message)
}

func WrapStorageError(err error, operation, message string) error {
	return Wrap(err, ErrorTypeStorage, operation, message)
}

func WrapNetworkError(err error, operation, message string) error {
	return Wrap(err, ErrorTypeNetwork, operation, message)
}

func WrapCodecError(err error, operation, message string) error {
	return Wrap(err, ErrorTypeCodec, operation, message)
}

func WrapStateError(err error, operation, message string) error {
	return Wrap(err, ErrorTypeState, operation, message)
}
