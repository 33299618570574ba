package transport

import "errors"

// Sentinel errors for the transport layer.
var (
	ErrProtocol       = errors.New("transport: malformed message")
	ErrAuth           = errors.New("transport: signature mismatch")
	ErrConfiguration  = errors.New("transport: invalid configuration")
	ErrClosed         = errors.New("transport: closed")
	ErrUnknownChannel = errors.New("transport: unknown channel")
)
