package core

import "fmt"

// ErrNotFound indicates a requested resource does not exist.
type ErrNotFound struct {
	Resource string
	Name     string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(resource, name string) error {
	return &ErrNotFound{Resource: resource, Name: name}
}

// ErrInvalidArgument indicates invalid input.
type ErrInvalidArgument struct {
	Field   string
	Message string
}

func (e *ErrInvalidArgument) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid argument for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid argument: %s", e.Message)
}

func NewInvalidArgumentError(field, message string) error {
	return &ErrInvalidArgument{Field: field, Message: message}
}

// ErrOutOfBounds indicates a coordinate outside the field.
type ErrOutOfBounds struct {
	XY   XY
	Size int
}

func (e *ErrOutOfBounds) Error() string {
	return fmt.Sprintf("coordinate %s out of bounds for field of size %d", e.XY, e.Size)
}

func NewOutOfBoundsError(xy XY, size int) error {
	return &ErrOutOfBounds{XY: xy, Size: size}
}

// ErrUnavailable indicates temporary unavailability.
type ErrUnavailable struct {
	Operation string
	Reason    string
}

func (e *ErrUnavailable) Error() string {
	return fmt.Sprintf("service unavailable for %s: %s", e.Operation, e.Reason)
}

func NewUnavailableError(operation, reason string) error {
	return &ErrUnavailable{Operation: operation, Reason: reason}
}
