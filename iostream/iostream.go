// Package iostream captures the output of one execution and forwards every
// write as a stream message.
package iostream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/tailored-agentic-units/nbkernel/protocol"
)

// ErrClosed is returned by writes after the capture has been closed.
var ErrClosed = errors.New("output capture closed")

// Publisher forwards text written to the named stream.
type Publisher func(ctx context.Context, name, text string) error

// Capture owns the stdout and stderr writers handed to a backend for one
// execution. Writes are published immediately, except for a trailing
// incomplete UTF-8 sequence, which is held until the next write completes it
// or the capture is closed.
type Capture struct {
	ctx     context.Context
	publish Publisher

	mu     sync.Mutex
	closed bool
	stdout *stream
	stderr *stream
}

// New starts a capture. Messages are published with ctx.
func New(ctx context.Context, publish Publisher) *Capture {
	c := &Capture{ctx: ctx, publish: publish}
	c.stdout = &stream{name: protocol.Stdout, capture: c}
	c.stderr = &stream{name: protocol.Stderr, capture: c}
	return c
}

func (c *Capture) Stdout() io.Writer {
	return c.stdout
}

func (c *Capture) Stderr() io.Writer {
	return c.stderr
}

// Close flushes held bytes and detaches the writers. It is safe to call
// more than once.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return errors.Join(c.stdout.flush(), c.stderr.flush())
}

type stream struct {
	name    string
	capture *Capture
	pending []byte
}

func (s *stream) Write(p []byte) (int, error) {
	c := s.capture
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	data := append(s.pending, p...)
	cut := completePrefix(data)
	s.pending = append([]byte(nil), data[cut:]...)

	if cut == 0 {
		return len(p), nil
	}
	if err := s.send(string(data[:cut])); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *stream) flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	text := string(s.pending)
	s.pending = nil
	return s.send(text)
}

func (s *stream) send(text string) error {
	if err := s.capture.publish(s.capture.ctx, s.name, text); err != nil {
		return fmt.Errorf("publish %s: %w", s.name, err)
	}
	return nil
}

// completePrefix returns the length of the longest prefix of b that does not
// end inside a multi-byte UTF-8 sequence.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if utf8.RuneStart(b[i]) {
			if utf8.FullRune(b[i:]) {
				return len(b)
			}
			return i
		}
	}
	return len(b)
}
