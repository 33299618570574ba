// Package transport binds the five kernel channels and moves signed protocol
// messages over them.
//
// The wire format is multi-part:
//
//	[identities..., <IDS|MSG>, signature, header, parent_header, metadata, content, buffers...]
//
// Sockets come from a Provider chosen by the connection's transport name. The
// ZeroMQ provider handles tcp and ipc; extra providers passed with
// WithProviders are consulted after it, in order.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// Option configures Bind.
type Option func(*options)

type options struct {
	providers []Provider
	config    Config
}

// WithProviders appends providers after the built-in ZeroMQ provider.
func WithProviders(providers ...Provider) Option {
	return func(o *options) { o.providers = append(o.providers, providers...) }
}

// WithConfig overrides the default transport limits.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// Transport owns the bound sockets of one kernel.
type Transport struct {
	info     ConnectionInfo
	provider Provider
	signer   *Signer
	config   Config

	sockets map[Channel]Socket
	sendMu  map[Channel]*sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// Bind opens all five channels described by info.
func Bind(ctx context.Context, info ConnectionInfo, opts ...Option) (*Transport, error) {
	o := options{
		providers: []Provider{ZMQProvider{}},
		config:    DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	signer, err := NewSigner(info.SignatureScheme, []byte(info.Key))
	if err != nil {
		return nil, err
	}

	provider, err := SelectProvider(o.providers, info.Transport)
	if err != nil {
		return nil, err
	}

	t := &Transport{
		info:     info,
		provider: provider,
		signer:   signer,
		config:   o.config,
		sockets:  make(map[Channel]Socket, len(Channels)),
		sendMu:   make(map[Channel]*sync.Mutex, len(Channels)),
	}

	for _, ch := range Channels {
		endpoint, err := info.Endpoint(ch)
		if err != nil {
			t.Close()
			return nil, err
		}

		sock, err := provider.Listen(ctx, KindOf(ch), endpoint)
		if err != nil {
			t.Close()
			return nil, fmt.Errorf("failed to bind %s channel: %w", ch, err)
		}

		t.sockets[ch] = sock
		t.sendMu[ch] = &sync.Mutex{}
	}

	return t, nil
}

// Provider returns the provider serving this transport.
func (t *Transport) Provider() Provider {
	return t.provider
}

// Signer returns the signer used for outgoing and incoming messages.
func (t *Transport) Signer() *Signer {
	return t.signer
}

// Info returns the connection info the transport was bound with.
func (t *Transport) Info() ConnectionInfo {
	return t.info
}

// Recv blocks until a message arrives on ch. Errors wrapping ErrProtocol or
// ErrAuth mean one message was dropped and the channel is still usable; any
// other error means the socket is gone.
func (t *Transport) Recv(ctx context.Context, ch Channel) (*protocol.Message, error) {
	sock, err := t.socket(ch)
	if err != nil {
		return nil, err
	}

	frames, err := sock.Recv(ctx)
	if err != nil {
		return nil, err
	}

	return Decode(frames, t.signer, t.config)
}

// Send signs and transmits msg on ch. Messages on iopub are prefixed with a
// kernel.<session>.<msg_type> topic frame in place of routing identities.
func (t *Transport) Send(ctx context.Context, ch Channel, msg *protocol.Message) error {
	sock, err := t.socket(ch)
	if err != nil {
		return err
	}

	if ch == IOPub {
		topic := fmt.Sprintf("kernel.%s.%s", msg.Header.Session, msg.Header.MsgType)
		copied := *msg
		copied.Identities = [][]byte{[]byte(topic)}
		msg = &copied
	}

	frames, err := Encode(msg, t.signer)
	if err != nil {
		return err
	}

	mu := t.sendMu[ch]
	mu.Lock()
	defer mu.Unlock()

	if err := sock.Send(ctx, frames); err != nil {
		return fmt.Errorf("send %s on %s: %w", msg.Header.MsgType, ch, err)
	}
	return nil
}

// ServeHeartbeat echoes every heartbeat frame back unchanged until ctx ends
// or the socket closes. It touches no kernel state and runs on its own.
func (t *Transport) ServeHeartbeat(ctx context.Context) error {
	sock, err := t.socket(Heartbeat)
	if err != nil {
		return err
	}

	for {
		frames, err := sock.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return fmt.Errorf("heartbeat recv: %w", err)
		}

		if err := sock.Send(ctx, frames); err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrClosed) {
				return nil
			}
			return fmt.Errorf("heartbeat send: %w", err)
		}
	}
}

// Close closes every socket. It is safe to call more than once.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		var errs []error
		for _, ch := range Channels {
			if sock, ok := t.sockets[ch]; ok {
				if err := sock.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close %s: %w", ch, err))
				}
			}
		}
		t.closeErr = errors.Join(errs...)
	})
	return t.closeErr
}

func (t *Transport) socket(ch Channel) (Socket, error) {
	sock, ok := t.sockets[ch]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return sock, nil
}
