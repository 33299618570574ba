package backend

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for backends and the backend registry.
var (
	ErrInterrupted     = errors.New("execution interrupted")
	ErrStdinNotAllowed = errors.New("stdin not allowed for this request")
	ErrNotFound        = errors.New("backend not found")
	ErrAlreadyExists   = errors.New("backend already registered")
	ErrEmptyName       = errors.New("backend name is empty")
)

// InterruptName is the error name reported for interrupted executions.
const InterruptName = "InterruptError"

// Error is an exception raised by user code.
type Error struct {
	Name      string
	Value     string
	Traceback []string
}

// Errorf creates an Error whose traceback is its own summary line.
func Errorf(name, format string, args ...any) *Error {
	value := fmt.Sprintf(format, args...)
	return &Error{
		Name:      name,
		Value:     value,
		Traceback: []string{name + ": " + value},
	}
}

func (e *Error) Error() string {
	if e.Value == "" {
		return e.Name
	}
	return e.Name + ": " + e.Value
}

// AsError converts any execution failure into an Error. Cancellation becomes
// an InterruptError; other errors keep their message under the name "Error".
func AsError(err error) *Error {
	if err == nil {
		return nil
	}

	var be *Error
	if errors.As(err, &be) {
		if be.Traceback == nil {
			copied := *be
			copied.Traceback = []string{be.Error()}
			return &copied
		}
		return be
	}

	if errors.Is(err, ErrInterrupted) || errors.Is(err, context.Canceled) {
		return Errorf(InterruptName, "%s", ErrInterrupted.Error())
	}

	return Errorf("Error", "%s", err.Error())
}
