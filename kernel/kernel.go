// Package kernel implements the notebook kernel state machine. It binds the
// five channels, dispatches requests by message type, runs code through a
// backend one execution at a time, and broadcasts side effects on iopub.
//
// The kernel initializes from configuration via New, creating all subsystems
// internally. Functional options override any of them.
//
//	k, err := kernel.New(cfg, conn)
//	err = k.Serve(ctx)
package kernel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/nbkernel/backend"
	"github.com/tailored-agentic-units/nbkernel/backend/calc"
	"github.com/tailored-agentic-units/nbkernel/comm"
	"github.com/tailored-agentic-units/nbkernel/display"
	"github.com/tailored-agentic-units/nbkernel/history"
	"github.com/tailored-agentic-units/nbkernel/observability"
	"github.com/tailored-agentic-units/nbkernel/protocol"
	"github.com/tailored-agentic-units/nbkernel/session"
	"github.com/tailored-agentic-units/nbkernel/transport"
)

// Implementation identifies this kernel in kernel_info replies.
const (
	Implementation = "nbkernel"
	Version        = "0.1.0"
)

// Option configures a Kernel after config-driven initialization.
type Option func(*Kernel)

// WithBackend uses b instead of looking the configured backend up.
func WithBackend(b backend.Backend) Option {
	return func(k *Kernel) { k.backend = b }
}

// WithRegistry replaces the backend registry, which by default holds calc.
func WithRegistry(r *backend.Registry) Option {
	return func(k *Kernel) { k.backends = r }
}

// WithObserver overrides the default SlogObserver.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.observer = o }
}

// WithLogger sets the logger behind the default SlogObserver.
func WithLogger(l *slog.Logger) Option {
	return func(k *Kernel) { k.logger = l }
}

// WithProviders adds transport providers after the ZeroMQ provider.
func WithProviders(providers ...transport.Provider) Option {
	return func(k *Kernel) { k.providers = append(k.providers, providers...) }
}

// WithHistory overrides the config-created history.
func WithHistory(h *history.History) Option {
	return func(k *Kernel) { k.history = h }
}

// WithSession overrides the config-created session.
func WithSession(s session.Session) Option {
	return func(k *Kernel) { k.session = s }
}

// WithMetrics registers kernel event metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(k *Kernel) { k.metrics = reg }
}

// Kernel serves one notebook session.
type Kernel struct {
	cfg       Config
	conn      transport.ConnectionInfo
	providers []transport.Provider

	backends   *backend.Registry
	backend    backend.Backend
	session    session.Session
	history    *history.History
	formatters *display.Registry
	comms      *comm.Manager
	observer   observability.Observer
	logger     *slog.Logger
	metrics    prometheus.Registerer

	handlers map[string]handler

	transport *transport.Transport
	queue     chan queued
	control   chan *protocol.Message
	stdin     *pendingInputs
	ready     chan struct{}
	readyOnce sync.Once

	// execMu serializes every call into the backend.
	execMu sync.Mutex

	mu         sync.Mutex
	serving    bool
	stop       context.CancelFunc
	cancelExec context.CancelFunc

	// Stop-on-error state, owned by the shell worker. After a failure,
	// abortRemaining counts the requests that were already queued and
	// abortBefore is the failure time on the sender's clock, which also
	// catches requests still unread on the socket.
	abortRemaining int
	abortBefore    time.Time
	arrived        time.Time

	stopping atomic.Bool
	restart  atomic.Bool
}

// New creates a Kernel from configuration. A nil cfg uses DefaultConfig.
func New(cfg *Config, conn transport.ConnectionInfo, opts ...Option) (*Kernel, error) {
	c := DefaultConfig()
	if cfg != nil {
		c.Merge(cfg)
	}

	k := &Kernel{
		cfg:   c,
		conn:  conn,
		stdin: newPendingInputs(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(k)
	}

	if k.backends == nil {
		k.backends = backend.NewRegistry()
		if err := calc.Register(k.backends); err != nil {
			return nil, wrap("register backends", err)
		}
	}

	if k.backend == nil {
		b, err := k.backends.Get(c.Backend)
		if err != nil {
			return nil, &Error{Kind: KindConfiguration, Op: "create backend", Err: err}
		}
		k.backend = b
	}

	if k.session == nil {
		s, err := session.New(&c.Session, []byte(conn.Key))
		if err != nil {
			return nil, fmt.Errorf("failed to create session: %w", err)
		}
		k.session = s
	}

	if k.history == nil {
		k.history = history.New(history.NewStore(&c.History), c.History)
	}

	if k.observer == nil {
		k.observer = observability.NewSlogObserver(k.logger)
	}
	if k.metrics != nil {
		m, err := observability.NewMetricsObserver(k.metrics)
		if err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		k.observer = observability.NewMultiObserver(k.observer, m)
	}

	k.formatters = display.NewRegistry(c.Display, display.WithObserver(k.observer))
	k.comms = comm.NewManager(k.publish, k.observer)
	k.handlers = k.dispatchTable()

	return k, nil
}

// Session returns the kernel session.
func (k *Kernel) Session() session.Session {
	return k.session
}

// Backend returns the interpreter backend.
func (k *Kernel) Backend() backend.Backend {
	return k.backend
}

// Backends returns the backend registry.
func (k *Kernel) Backends() *backend.Registry {
	return k.backends
}

// Formatters returns the display formatter registry. Formatters registered
// here apply to every later result and display call.
func (k *Kernel) Formatters() *display.Registry {
	return k.formatters
}

// Comms returns the comm manager. Register comm targets here.
func (k *Kernel) Comms() *comm.Manager {
	return k.comms
}

// History returns the execution history.
func (k *Kernel) History() *history.History {
	return k.history
}

// Ready is closed once Serve has bound the channels.
func (k *Kernel) Ready() <-chan struct{} {
	return k.ready
}

// RestartRequested reports whether the shutdown that ended Serve asked for a
// restart.
func (k *Kernel) RestartRequested() bool {
	return k.restart.Load()
}

// Serve binds the channels and serves requests until ctx ends, a
// shutdown_request arrives, or Close is called. It returns nil on a clean
// stop and an *Error when a channel fails.
func (k *Kernel) Serve(ctx context.Context) error {
	k.mu.Lock()
	if k.serving {
		k.mu.Unlock()
		return ErrServing
	}
	k.serving = true
	k.stopping.Store(false)
	ctx, cancel := context.WithCancel(ctx)
	k.stop = cancel
	k.mu.Unlock()

	defer func() {
		cancel()
		k.mu.Lock()
		k.serving = false
		k.stop = nil
		k.mu.Unlock()
	}()

	if err := k.history.Bootstrap(ctx); err != nil {
		k.emit(ctx, EventHistoryError, observability.LevelWarning, map[string]any{"error": err.Error()})
	}

	tr, err := transport.Bind(ctx, k.conn,
		transport.WithProviders(k.providers...),
		transport.WithConfig(k.cfg.Transport),
	)
	if err != nil {
		return wrap("bind", err)
	}
	k.mu.Lock()
	k.transport = tr
	k.mu.Unlock()
	defer tr.Close()

	k.queue = make(chan queued, k.cfg.ShellQueue)
	k.control = make(chan *protocol.Message, k.cfg.ShellQueue)

	k.emit(ctx, EventStarting, observability.LevelInfo, map[string]any{
		"session":   k.session.ID(),
		"transport": tr.Provider().Name(),
		"backend":   k.backend.LanguageInfo().Name,
	})
	k.setStatus(ctx, session.Starting)
	k.session.SetStatus(session.Idle)
	k.readyOnce.Do(func() { close(k.ready) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return tr.Close()
	})
	g.Go(func() error { return wrap("heartbeat", tr.ServeHeartbeat(gctx)) })
	g.Go(func() error { return k.readShell(gctx) })
	g.Go(func() error { return k.workShell(gctx) })
	g.Go(func() error { return k.serveControl(gctx) })
	g.Go(func() error { return k.workControl(gctx) })
	g.Go(func() error { return k.serveStdin(gctx) })

	err = g.Wait()
	k.stdin.cancelAll()
	k.emit(context.WithoutCancel(ctx), EventShutdown, observability.LevelInfo, map[string]any{
		"restart": k.restart.Load(),
	})

	if errors.Is(err, transport.ErrClosed) {
		return nil
	}
	return err
}

// Close stops a running Serve.
func (k *Kernel) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stop == nil {
		return ErrNotServing
	}
	k.stop()
	return nil
}

// Interrupt cancels the running execution, if any. It reports whether there
// was one.
func (k *Kernel) Interrupt() bool {
	k.mu.Lock()
	cancel := k.cancelExec
	k.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	k.emit(context.Background(), EventInterrupt, observability.LevelInfo, nil)
	return true
}

// queued is a shell request with the time it was read off the socket.
type queued struct {
	msg     *protocol.Message
	arrived time.Time
}

// readShell moves shell requests into the work queue so a long execution
// does not stall the socket.
func (k *Kernel) readShell(ctx context.Context) error {
	for {
		msg, err := k.recv(ctx, transport.Shell)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}

		select {
		case k.queue <- queued{msg: msg, arrived: time.Now()}:
		case <-ctx.Done():
			return nil
		}
	}
}

// workShell handles queued shell requests one at a time.
func (k *Kernel) workShell(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case item := <-k.queue:
			msg := item.msg
			k.arrived = item.arrived

			aborted := k.abortRemaining > 0 || k.sentBeforeAbort(msg)
			if k.abortRemaining > 0 {
				k.abortRemaining--
			}
			if aborted && msg.Type() == protocol.ExecuteRequest {
				k.serve(ctx, transport.Shell, msg, k.abortExecute)
				continue
			}
			k.serve(ctx, transport.Shell, msg, nil)
		}
	}
}

// markAbort records a stop_on_error failure of msg, which the shell worker
// read at k.arrived.
func (k *Kernel) markAbort(msg *protocol.Message) {
	k.abortRemaining = len(k.queue)
	if !msg.Header.Date.IsZero() {
		k.abortBefore = msg.Header.Date.Add(time.Since(k.arrived))
	}
}

// sentBeforeAbort reports whether msg was sent before the last
// stop_on_error failure, as seen on the sender's clock.
func (k *Kernel) sentBeforeAbort(msg *protocol.Message) bool {
	return !k.abortBefore.IsZero() && !msg.Header.Date.IsZero() && msg.Header.Date.Before(k.abortBefore)
}

// controlInline lists the control requests served on the reading goroutine.
// None of them call into the backend, so they never wait on a running
// execution.
var controlInline = map[string]bool{
	protocol.InterruptRequest:  true,
	protocol.ShutdownRequest:   true,
	protocol.KernelInfoRequest: true,
}

// serveControl handles control requests as they arrive, independent of the
// shell worker, so interrupts and shutdowns reach a busy kernel. Other
// request types are handed to workControl.
func (k *Kernel) serveControl(ctx context.Context) error {
	for {
		msg, err := k.recv(ctx, transport.Control)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}

		if controlInline[msg.Type()] {
			k.serve(ctx, transport.Control, msg, nil)
			continue
		}

		select {
		case k.control <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// workControl serves control requests that may wait on the backend.
func (k *Kernel) workControl(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-k.control:
			k.serve(ctx, transport.Control, msg, nil)
		}
	}
}

func (k *Kernel) serveStdin(ctx context.Context) error {
	for {
		msg, err := k.recv(ctx, transport.Stdin)
		if err != nil {
			return err
		}
		if msg == nil {
			continue
		}

		if msg.Type() != protocol.InputReply {
			k.dispatchError(ctx, msg)
			continue
		}
		k.handleInputReply(ctx, msg)
	}
}

// recv reads one message from ch. Dropped messages return (nil, nil). A nil
// error with a nil message also covers a clean stop, which callers detect
// through ctx.
func (k *Kernel) recv(ctx context.Context, ch transport.Channel) (*protocol.Message, error) {
	msg, err := k.bound().Recv(ctx, ch)
	switch {
	case err == nil:
		return msg, nil
	case ctx.Err() != nil, errors.Is(err, transport.ErrClosed):
		return nil, transport.ErrClosed
	case errors.Is(err, transport.ErrProtocol), errors.Is(err, transport.ErrAuth):
		kind := classify(err)
		k.emit(ctx, EventMessageDropped, observability.LevelWarning, map[string]any{
			"channel": string(ch),
			"kind":    kind.String(),
			"error":   err.Error(),
		})
		return nil, nil
	default:
		return nil, &Error{Kind: KindInternal, Op: "recv " + string(ch), Err: err}
	}
}

// serve runs one request. Shell requests are bracketed by busy and idle
// status messages; idle is published on every exit path.
func (k *Kernel) serve(ctx context.Context, ch transport.Channel, msg *protocol.Message, h handler) {
	ctx = protocol.WithParent(ctx, msg)

	defer func() {
		if k.stopping.Load() {
			k.Close()
		}
	}()
	if ch == transport.Shell {
		k.setStatus(ctx, session.Busy)
		defer k.setStatus(ctx, session.Idle)
	}
	defer k.recoverRequest(ctx, ch, msg)

	k.emit(ctx, EventRequest, observability.LevelVerbose, map[string]any{
		"channel":  string(ch),
		"msg_type": msg.Type(),
		"msg_id":   msg.Header.MsgID,
	})

	if h == nil {
		var ok bool
		if h, ok = k.handlers[msg.Type()]; !ok {
			k.dispatchError(ctx, msg)
			return
		}
	}

	if err := h(ctx, ch, msg); err != nil {
		err = wrap(msg.Type(), err)
		level := observability.LevelError
		var ke *Error
		if errors.As(err, &ke) && ke.Kind == KindProtocol {
			level = observability.LevelWarning
		}
		k.emit(ctx, EventInternalError, level, map[string]any{
			"msg_type": msg.Type(),
			"error":    err.Error(),
		})
	}
}

func (k *Kernel) recoverRequest(ctx context.Context, ch transport.Channel, msg *protocol.Message) {
	if r := recover(); r != nil {
		k.emit(ctx, EventInternalError, observability.LevelError, map[string]any{
			"channel":  string(ch),
			"msg_type": msg.Type(),
			"panic":    fmt.Sprint(r),
		})
	}
}

// dispatchError reports an unsupported message type on iopub.
func (k *Kernel) dispatchError(ctx context.Context, msg *protocol.Message) {
	ctx = protocol.WithParent(ctx, msg)
	k.emit(ctx, EventDispatchUnknown, observability.LevelWarning, map[string]any{
		"msg_type": msg.Type(),
		"msg_id":   msg.Header.MsgID,
	})

	value := fmt.Sprintf("unknown message type %q", msg.Type())
	k.publish(ctx, protocol.ErrorMsg, protocol.ErrorContent{
		EName:     KindDispatch.String(),
		EValue:    value,
		Traceback: []string{KindDispatch.String() + ": " + value},
	}, nil, nil)
}

func (k *Kernel) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	observability.Emit(ctx, k.observer, t, level, "kernel", data)
}
