package transport

import (
	"context"
	"sync"
)

// queue is a bounded, context-aware FIFO. Closing it unblocks every pending
// Send and Receive with ErrClosed.
type queue[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
}

func newQueue[T any](size int) *queue[T] {
	return &queue[T]{
		items: make(chan T, size),
		done:  make(chan struct{}),
	}
}

func (q *queue[T]) Send(ctx context.Context, item T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

// TrySend enqueues without blocking and reports whether the item was accepted.
func (q *queue[T]) TrySend(item T) bool {
	select {
	case <-q.done:
		return false
	default:
	}

	select {
	case q.items <- item:
		return true
	default:
		return false
	}
}

func (q *queue[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.items:
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-q.done:
		return zero, ErrClosed
	}
}

func (q *queue[T]) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}

func (q *queue[T]) Len() int {
	return len(q.items)
}
