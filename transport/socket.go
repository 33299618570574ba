package transport

import (
	"context"
	"fmt"
	"strings"
)

// SocketKind is the messaging pattern a channel is served with.
type SocketKind int

const (
	// Router serves request/reply channels with per-client routing identities
	// (shell, control, stdin).
	Router SocketKind = iota
	// Pub fans out to every subscriber (iopub).
	Pub
	// Rep answers each request in turn (heartbeat).
	Rep
)

func (k SocketKind) String() string {
	switch k {
	case Router:
		return "router"
	case Pub:
		return "pub"
	case Rep:
		return "rep"
	default:
		return "unknown"
	}
}

// KindOf returns the socket kind a channel is bound with.
func KindOf(ch Channel) SocketKind {
	switch ch {
	case IOPub:
		return Pub
	case Heartbeat:
		return Rep
	default:
		return Router
	}
}

// Socket moves multi-part frames. Implementations must allow one concurrent
// Recv alongside Send; the Transport serializes Sends per channel.
type Socket interface {
	Recv(ctx context.Context) ([][]byte, error)
	Send(ctx context.Context, frames [][]byte) error
	Close() error
}

// Provider opens listening sockets for the transports it supports.
type Provider interface {
	Name() string
	Supports(transport string) bool
	Listen(ctx context.Context, kind SocketKind, endpoint string) (Socket, error)
}

// SelectProvider returns the first provider in order that supports transport.
func SelectProvider(providers []Provider, transport string) (Provider, error) {
	for _, p := range providers {
		if p != nil && p.Supports(transport) {
			return p, nil
		}
	}

	names := make([]string, 0, len(providers))
	for _, p := range providers {
		if p != nil {
			names = append(names, p.Name())
		}
	}
	return nil, fmt.Errorf("%w: no provider for transport %q (available: %s)",
		ErrConfiguration, transport, strings.Join(names, ", "))
}
