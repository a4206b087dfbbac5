package tool

import (
	"errors"
	"fmt"
)

// Domain errors for the tool system.
var (
	// ErrEmptyName indicates a tool was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoHandler indicates a tool was created without a handler.
	ErrNoHandler = errors.New("tool has no handler")

	// ErrToolNotFound indicates the requested tool was not found.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolExists indicates a tool with the same name already exists.
	ErrToolExists = errors.New("tool already exists")

	// ErrInvalidInput indicates the input failed schema validation.
	ErrInvalidInput = errors.New("invalid tool input")

	// ErrToolFailed indicates the tool ran and reported a failure.
	ErrToolFailed = errors.New("tool failed")
)

// Error is the failure of a named tool invocation.
type Error struct {
	Tool string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tool %s: %v", e.Tool, e.Err)
}

// Unwrap exposes the cause and ErrToolFailed to errors.Is.
func (e *Error) Unwrap() []error {
	return []error{ErrToolFailed, e.Err}
}

// NewError wraps err as a failure of the named tool.
func NewError(name string, err error) *Error {
	return &Error{Tool: name, Err: err}
}
