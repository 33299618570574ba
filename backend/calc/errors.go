package calc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/nbkernel/backend"
)

// Sentinel errors for the builtins registry.
var (
	ErrBuiltinNotFound = errors.New("builtin not found")
	ErrBuiltinExists   = errors.New("builtin already registered")
	ErrEmptyName       = errors.New("builtin name is empty")
)

// Error names raised by calc code.
const (
	SyntaxError  = "SyntaxError"
	NameError    = "NameError"
	TypeError    = "TypeError"
	RuntimeError = "RuntimeError"
)

// raise creates a user error located at a statement.
func raise(name, value string, line int, source string) *backend.Error {
	return &backend.Error{
		Name:      name,
		Value:     value,
		Traceback: traceback(name, value, line, source),
	}
}

// locate attaches statement location to an error raised by a builtin.
func locate(err *backend.Error, line int, source string) *backend.Error {
	return raise(err.Name, err.Value, line, source)
}

func interrupted(line int, source string) *backend.Error {
	return raise(backend.InterruptName, backend.ErrInterrupted.Error(), line, source)
}

func traceback(name, value string, line int, source string) []string {
	tb := []string{fmt.Sprintf("  line %d: %s", line, firstLine(source))}
	for i, l := range strings.Split(value, "\n") {
		if i == 0 {
			tb = append(tb, name+": "+l)
			continue
		}
		tb = append(tb, "  "+l)
	}
	return tb
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

// summary returns the first line of a multi-line error message.
func summary(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
