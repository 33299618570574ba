// Package comm multiplexes named bidirectional channels over the kernel
// protocol. Either side may open a comm; messages for it travel as comm_msg
// on shell (front-end to kernel) and iopub (kernel to front-ends).
package comm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// Message is one comm_msg delivered to a comm.
type Message struct {
	Data     map[string]any
	Metadata map[string]any
	Buffers  [][]byte
}

// MsgHandler receives messages sent to a comm by the front-end.
type MsgHandler func(ctx context.Context, c *Comm, msg Message) error

// CloseHandler runs when the front-end closes a comm.
type CloseHandler func(ctx context.Context, c *Comm, data map[string]any)

// Comm is one end of an open comm channel.
type Comm struct {
	id      string
	target  string
	manager *Manager

	mu      sync.Mutex
	open    bool
	onMsg   MsgHandler
	onClose CloseHandler
}

func (c *Comm) ID() string {
	return c.id
}

func (c *Comm) Target() string {
	return c.target
}

// IsOpen reports whether the comm can still carry messages.
func (c *Comm) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// OnMsg sets the handler for incoming messages.
func (c *Comm) OnMsg(fn MsgHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMsg = fn
}

// OnClose sets the handler called when the front-end closes the comm.
func (c *Comm) OnClose(fn CloseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = fn
}

// Send publishes a comm_msg to the front-ends. It fails with ErrClosed once
// either side has closed the comm.
func (c *Comm) Send(ctx context.Context, data, metadata map[string]any, buffers [][]byte) error {
	if !c.IsOpen() {
		return fmt.Errorf("%w: %s", ErrClosed, c.id)
	}

	return c.manager.publish(ctx, protocol.CommMsg, protocol.CommMsgContent{
		CommID: c.id,
		Data:   orEmpty(data),
	}, metadata, buffers)
}

// Close publishes comm_close and detaches the comm from its manager.
func (c *Comm) Close(ctx context.Context, data map[string]any) error {
	if !c.markClosed() {
		return fmt.Errorf("%w: %s", ErrClosed, c.id)
	}

	c.manager.remove(c.id)
	c.manager.emitClose(ctx, c, "kernel")

	return c.manager.publish(ctx, protocol.CommClose, protocol.CommCloseContent{
		CommID: c.id,
		Data:   orEmpty(data),
	}, nil, nil)
}

func (c *Comm) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return false
	}
	c.open = false
	return true
}

func (c *Comm) handlers() (MsgHandler, CloseHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onMsg, c.onClose
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
