package comm

import "errors"

// Sentinel errors for comms and the comm manager.
var (
	ErrClosed        = errors.New("comm is closed")
	ErrNotFound      = errors.New("comm not found")
	ErrUnknownTarget = errors.New("comm target not registered")
	ErrTargetExists  = errors.New("comm target already registered")
	ErrEmptyTarget   = errors.New("comm target name is empty")
)
