package comm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/nbkernel/observability"
	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// Publisher sends a kernel-originated comm message to every front-end.
type Publisher func(ctx context.Context, msgType string, content any, metadata map[string]any, buffers [][]byte) error

// OpenHandler accepts a comm opened by the front-end for a target. It may
// install handlers on the comm or send and close it right away. Returning an
// error closes the comm.
type OpenHandler func(ctx context.Context, c *Comm, data map[string]any) error

// Manager tracks open comms and the targets that accept them.
//
// Incoming messages are handled on the caller's goroutine. Handlers may call
// back into the manager.
type Manager struct {
	publisher Publisher
	observer  observability.Observer

	mu      sync.RWMutex
	targets map[string]OpenHandler
	comms   map[string]*Comm
}

// NewManager creates a Manager publishing through pub. A nil observer
// discards events.
func NewManager(pub Publisher, observer observability.Observer) *Manager {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Manager{
		publisher: pub,
		observer:  observer,
		targets:   make(map[string]OpenHandler),
		comms:     make(map[string]*Comm),
	}
}

// RegisterTarget installs the handler for comms opened against name.
func (m *Manager) RegisterTarget(name string, handler OpenHandler) error {
	if name == "" {
		return ErrEmptyTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.targets[name]; exists {
		return fmt.Errorf("%w: %s", ErrTargetExists, name)
	}
	m.targets[name] = handler
	return nil
}

// UnregisterTarget removes a target. Comms already open stay open.
func (m *Manager) UnregisterTarget(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.targets[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	delete(m.targets, name)
	return nil
}

// Targets returns the number of registered targets.
func (m *Manager) Targets() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.targets)
}

// Open creates a kernel-initiated comm and announces it with comm_open.
// No acknowledgement is expected from the front-end.
func (m *Manager) Open(ctx context.Context, target string, data, metadata map[string]any) (*Comm, error) {
	if target == "" {
		return nil, ErrEmptyTarget
	}

	c := m.add(uuid.NewString(), target)

	err := m.publish(ctx, protocol.CommOpen, protocol.CommOpenContent{
		CommID:     c.id,
		TargetName: target,
		Data:       orEmpty(data),
	}, metadata, nil)
	if err != nil {
		m.remove(c.id)
		return nil, err
	}

	m.emit(ctx, EventOpen, observability.LevelVerbose, map[string]any{
		"comm_id": c.id,
		"target":  target,
		"origin":  "kernel",
	})
	return c, nil
}

// Send publishes data on the comm with the given id.
func (m *Manager) Send(ctx context.Context, id string, data map[string]any) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Send(ctx, data, nil, nil)
}

// Close closes the comm with the given id.
func (m *Manager) Close(ctx context.Context, id string, data map[string]any) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c.Close(ctx, data)
}

// Get returns an open comm by id.
func (m *Manager) Get(id string) (*Comm, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.comms[id]
	return c, ok
}

// Info maps open comm ids to their target names. An empty target matches
// every comm.
func (m *Manager) Info(target string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := make(map[string]string)
	for id, c := range m.comms {
		if target == "" || c.target == target {
			info[id] = c.target
		}
	}
	return info
}

// HandleOpen processes comm_open from a front-end. An unknown target is
// logged and ignored; comm_open has no reply.
func (m *Manager) HandleOpen(ctx context.Context, content protocol.CommOpenContent) {
	m.mu.RLock()
	handler, ok := m.targets[content.TargetName]
	m.mu.RUnlock()

	if !ok {
		m.emit(ctx, EventTargetUnknown, observability.LevelWarning, map[string]any{
			"comm_id": content.CommID,
			"target":  content.TargetName,
		})
		return
	}

	if content.CommID == "" {
		content.CommID = uuid.NewString()
	}

	c := m.add(content.CommID, content.TargetName)
	m.emit(ctx, EventOpen, observability.LevelVerbose, map[string]any{
		"comm_id": c.id,
		"target":  c.target,
		"origin":  "frontend",
	})

	if err := m.call(func() error { return handler(ctx, c, orEmpty(content.Data)) }); err != nil {
		m.handlerError(ctx, c, "open", err)
		if c.IsOpen() {
			c.Close(ctx, nil)
		}
	}
}

// HandleMsg delivers comm_msg from a front-end. Messages for unknown comms
// are reported as a warning and otherwise ignored.
func (m *Manager) HandleMsg(ctx context.Context, content protocol.CommMsgContent, metadata map[string]any, buffers [][]byte) {
	c, ok := m.Get(content.CommID)
	if !ok {
		m.emit(ctx, EventUnknownComm, observability.LevelWarning, map[string]any{
			"comm_id":  content.CommID,
			"msg_type": protocol.CommMsg,
		})
		return
	}

	onMsg, _ := c.handlers()
	if onMsg == nil {
		return
	}

	msg := Message{Data: orEmpty(content.Data), Metadata: metadata, Buffers: buffers}
	if err := m.call(func() error { return onMsg(ctx, c, msg) }); err != nil {
		m.handlerError(ctx, c, "msg", err)
	}
}

// HandleClose processes comm_close from a front-end. Nothing is published
// back.
func (m *Manager) HandleClose(ctx context.Context, content protocol.CommCloseContent) {
	c, ok := m.Get(content.CommID)
	if !ok || !c.markClosed() {
		m.emit(ctx, EventUnknownComm, observability.LevelWarning, map[string]any{
			"comm_id":  content.CommID,
			"msg_type": protocol.CommClose,
		})
		return
	}

	m.remove(c.id)
	m.emitClose(ctx, c, "frontend")

	_, onClose := c.handlers()
	if onClose == nil {
		return
	}
	m.call(func() error {
		onClose(ctx, c, orEmpty(content.Data))
		return nil
	})
}

func (m *Manager) add(id, target string) *Comm {
	c := &Comm{id: id, target: target, manager: m, open: true}

	m.mu.Lock()
	m.comms[id] = c
	m.mu.Unlock()
	return c
}

func (m *Manager) remove(id string) {
	m.mu.Lock()
	delete(m.comms, id)
	m.mu.Unlock()
}

func (m *Manager) publish(ctx context.Context, msgType string, content any, metadata map[string]any, buffers [][]byte) error {
	if m.publisher == nil {
		return nil
	}
	if err := m.publisher(ctx, msgType, content, metadata, buffers); err != nil {
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

// call runs a user handler, turning a panic into an error.
func (m *Manager) call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}

func (m *Manager) handlerError(ctx context.Context, c *Comm, stage string, err error) {
	m.emit(ctx, EventHandlerError, observability.LevelError, map[string]any{
		"comm_id": c.id,
		"target":  c.target,
		"stage":   stage,
		"error":   err.Error(),
	})
}

func (m *Manager) emitClose(ctx context.Context, c *Comm, origin string) {
	m.emit(ctx, EventClose, observability.LevelVerbose, map[string]any{
		"comm_id": c.id,
		"target":  c.target,
		"origin":  origin,
	})
}

func (m *Manager) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "comm.Manager",
		Data:      data,
	})
}
