package comm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/nbkernel/comm"
	"github.com/tailored-agentic-units/nbkernel/observability"
	"github.com/tailored-agentic-units/nbkernel/protocol"
)

type published struct {
	msgType string
	content any
}

type recorder struct {
	mu   sync.Mutex
	msgs []published
}

func (r *recorder) publish(_ context.Context, msgType string, content any, _ map[string]any, _ [][]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{msgType: msgType, content: content})
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.msgs))
	for i, m := range r.msgs {
		out[i] = m.msgType
	}
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []observability.Event
}

func (l *eventLog) OnEvent(_ context.Context, e observability.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) has(t observability.EventType) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func newManager() (*comm.Manager, *recorder, *eventLog) {
	rec := &recorder{}
	events := &eventLog{}
	return comm.NewManager(rec.publish, events), rec, events
}

func TestManager_OpenSendClose(t *testing.T) {
	m, rec, _ := newManager()
	ctx := context.Background()

	c, err := m.Open(ctx, "widget", map[string]any{"value": 1}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, "widget", c.Target())
	assert.True(t, c.IsOpen())

	got, ok := m.Get(c.ID())
	require.True(t, ok)
	assert.Same(t, c, got)

	require.NoError(t, m.Send(ctx, c.ID(), map[string]any{"value": 2}))
	require.NoError(t, m.Close(ctx, c.ID(), nil))

	assert.Equal(t, []string{protocol.CommOpen, protocol.CommMsg, protocol.CommClose}, rec.types())
	assert.False(t, c.IsOpen())

	open := rec.msgs[0].content.(protocol.CommOpenContent)
	assert.Equal(t, c.ID(), open.CommID)
	assert.Equal(t, "widget", open.TargetName)
}

func TestComm_SendAfterClose(t *testing.T) {
	m, _, _ := newManager()
	ctx := context.Background()

	c, err := m.Open(ctx, "widget", nil, nil)
	require.NoError(t, err)
	require.NoError(t, c.Close(ctx, nil))

	err = c.Send(ctx, map[string]any{"x": 1}, nil, nil)
	assert.ErrorIs(t, err, comm.ErrClosed)

	err = c.Close(ctx, nil)
	assert.ErrorIs(t, err, comm.ErrClosed)

	err = m.Send(ctx, c.ID(), nil)
	assert.ErrorIs(t, err, comm.ErrNotFound)
}

func TestManager_HandleOpen(t *testing.T) {
	m, rec, _ := newManager()
	ctx := context.Background()

	var received []comm.Message
	require.NoError(t, m.RegisterTarget("echo", func(ctx context.Context, c *comm.Comm, data map[string]any) error {
		c.OnMsg(func(ctx context.Context, c *comm.Comm, msg comm.Message) error {
			received = append(received, msg)
			return c.Send(ctx, msg.Data, nil, nil)
		})
		return nil
	}))

	m.HandleOpen(ctx, protocol.CommOpenContent{CommID: "c1", TargetName: "echo"})
	_, ok := m.Get("c1")
	require.True(t, ok)

	m.HandleMsg(ctx, protocol.CommMsgContent{CommID: "c1", Data: map[string]any{"ping": true}}, nil, nil)

	require.Len(t, received, 1)
	assert.Equal(t, true, received[0].Data["ping"])
	assert.Equal(t, []string{protocol.CommMsg}, rec.types())

	assert.Equal(t, map[string]string{"c1": "echo"}, m.Info(""))
	assert.Equal(t, map[string]string{"c1": "echo"}, m.Info("echo"))
	assert.Empty(t, m.Info("other"))
}

func TestManager_HandleOpenUnknownTarget(t *testing.T) {
	m, rec, events := newManager()

	m.HandleOpen(context.Background(), protocol.CommOpenContent{CommID: "c1", TargetName: "missing"})

	_, ok := m.Get("c1")
	assert.False(t, ok)
	assert.Empty(t, rec.types(), "no reply for unknown targets")
	assert.True(t, events.has(comm.EventTargetUnknown))
}

func TestManager_HandleOpenHandlerError(t *testing.T) {
	m, rec, events := newManager()
	require.NoError(t, m.RegisterTarget("broken", func(context.Context, *comm.Comm, map[string]any) error {
		return errors.New("refused")
	}))

	m.HandleOpen(context.Background(), protocol.CommOpenContent{CommID: "c1", TargetName: "broken"})

	_, ok := m.Get("c1")
	assert.False(t, ok)
	assert.Equal(t, []string{protocol.CommClose}, rec.types())
	assert.True(t, events.has(comm.EventHandlerError))
}

func TestManager_HandlerPanic(t *testing.T) {
	m, _, events := newManager()
	require.NoError(t, m.RegisterTarget("panicky", func(ctx context.Context, c *comm.Comm, _ map[string]any) error {
		c.OnMsg(func(context.Context, *comm.Comm, comm.Message) error {
			panic("bad handler")
		})
		return nil
	}))

	m.HandleOpen(context.Background(), protocol.CommOpenContent{CommID: "c1", TargetName: "panicky"})
	assert.NotPanics(t, func() {
		m.HandleMsg(context.Background(), protocol.CommMsgContent{CommID: "c1"}, nil, nil)
	})
	assert.True(t, events.has(comm.EventHandlerError))
}

func TestManager_UnknownCommMessage(t *testing.T) {
	m, rec, events := newManager()
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.HandleMsg(ctx, protocol.CommMsgContent{CommID: "nope"}, nil, nil)
		m.HandleClose(ctx, protocol.CommCloseContent{CommID: "nope"})
	})
	assert.True(t, events.has(comm.EventUnknownComm))
	assert.Empty(t, rec.types())
}

func TestManager_HandleClose(t *testing.T) {
	m, rec, _ := newManager()
	ctx := context.Background()

	var closedWith map[string]any
	require.NoError(t, m.RegisterTarget("w", func(ctx context.Context, c *comm.Comm, _ map[string]any) error {
		c.OnClose(func(_ context.Context, _ *comm.Comm, data map[string]any) {
			closedWith = data
		})
		return nil
	}))

	m.HandleOpen(ctx, protocol.CommOpenContent{CommID: "c1", TargetName: "w"})
	c, ok := m.Get("c1")
	require.True(t, ok)

	m.HandleClose(ctx, protocol.CommCloseContent{CommID: "c1", Data: map[string]any{"reason": "done"}})

	assert.False(t, c.IsOpen())
	assert.Equal(t, "done", closedWith["reason"])
	assert.Empty(t, rec.types(), "front-end close is not echoed")

	err := c.Send(ctx, nil, nil, nil)
	assert.ErrorIs(t, err, comm.ErrClosed)
}

func TestManager_Targets(t *testing.T) {
	m, _, _ := newManager()
	noop := func(context.Context, *comm.Comm, map[string]any) error { return nil }

	assert.ErrorIs(t, m.RegisterTarget("", noop), comm.ErrEmptyTarget)
	require.NoError(t, m.RegisterTarget("a", noop))
	assert.ErrorIs(t, m.RegisterTarget("a", noop), comm.ErrTargetExists)
	assert.Equal(t, 1, m.Targets())

	require.NoError(t, m.UnregisterTarget("a"))
	assert.ErrorIs(t, m.UnregisterTarget("a"), comm.ErrUnknownTarget)
	assert.Equal(t, 0, m.Targets())

	_, err := m.Open(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, comm.ErrEmptyTarget)
}
