package history

import "errors"

// Sentinel errors for store operations.
var (
	ErrSessionNotFound = errors.New("history session not found")
	ErrLoadFailed      = errors.New("load failed")
	ErrSaveFailed      = errors.New("save failed")
	ErrBadPattern      = errors.New("invalid search pattern")
)
