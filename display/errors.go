package display

import "errors"

// Sentinel errors for the formatter registry.
var (
	ErrFormatter    = errors.New("formatter failed")
	ErrNotFound     = errors.New("formatter not found")
	ErrEmptyName    = errors.New("formatter name is empty")
	ErrNilFormatter = errors.New("formatter is nil")
)
