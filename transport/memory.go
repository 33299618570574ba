package transport

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

const defaultMemoryQueueSize = 1024

// MemoryProvider serves the "memory" transport: in-process sockets whose far
// ends are reachable through Dial. It lets a kernel and its front-end share
// one process, which is how the kernel is exercised in tests.
type MemoryProvider struct {
	size    int
	sockets map[string]*memorySocket
	mu      sync.Mutex
}

// NewMemoryProvider creates a provider whose socket queues hold size frames
// sets each. A non-positive size uses the default.
func NewMemoryProvider(size int) *MemoryProvider {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryProvider{
		size:    size,
		sockets: make(map[string]*memorySocket),
	}
}

func (p *MemoryProvider) Name() string {
	return "memory"
}

func (p *MemoryProvider) Supports(transport string) bool {
	return transport == "memory"
}

func (p *MemoryProvider) Listen(_ context.Context, kind SocketKind, endpoint string) (Socket, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sockets[endpoint]; exists {
		return nil, fmt.Errorf("listen %s %s: address already in use", kind, endpoint)
	}

	sock := &memorySocket{
		kind:     kind,
		endpoint: endpoint,
		inbound:  newQueue[[][]byte](p.size),
		outbound: newQueue[[][]byte](p.size),
		release:  p.release,
	}
	p.sockets[endpoint] = sock
	return sock, nil
}

// Dial connects to a bound endpoint and returns the front-end side of it.
func (p *MemoryProvider) Dial(endpoint string) (*MemoryClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	sock, exists := p.sockets[endpoint]
	if !exists {
		return nil, fmt.Errorf("dial %s: connection refused", endpoint)
	}
	return &MemoryClient{sock: sock}, nil
}

func (p *MemoryProvider) release(endpoint string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sockets, endpoint)
}

type memorySocket struct {
	kind     SocketKind
	endpoint string
	inbound  *queue[[][]byte]
	outbound *queue[[][]byte]
	release  func(string)
	once     sync.Once
}

func (s *memorySocket) Recv(ctx context.Context) ([][]byte, error) {
	return s.inbound.Receive(ctx)
}

// Send delivers frames to the client side. Publications never block: like a
// PUB socket at its high-water mark, a full queue drops the message.
func (s *memorySocket) Send(ctx context.Context, frames [][]byte) error {
	frames = cloneFrames(frames)
	if s.kind == Pub {
		s.outbound.TrySend(frames)
		return nil
	}
	return s.outbound.Send(ctx, frames)
}

func (s *memorySocket) Close() error {
	s.once.Do(func() {
		s.inbound.Close()
		s.outbound.Close()
		s.release(s.endpoint)
	})
	return nil
}

// MemoryClient is the front-end end of a memory socket.
type MemoryClient struct {
	sock *memorySocket
}

// Send delivers frames to the kernel side.
func (c *MemoryClient) Send(ctx context.Context, frames ...[]byte) error {
	return c.sock.inbound.Send(ctx, slices.Clone(frames))
}

// Recv returns the next frames sent by the kernel side.
func (c *MemoryClient) Recv(ctx context.Context) ([][]byte, error) {
	return c.sock.outbound.Receive(ctx)
}

// Pending returns the number of frame sets waiting to be received.
func (c *MemoryClient) Pending() int {
	return c.sock.outbound.Len()
}
