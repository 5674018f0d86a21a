package queue

import (
	"context"
	"sync"
)

const memoryQueueDepth = 1024

// MemoryQueue is the in-process queue used when no broker is configured.
// Only workers in the same process can consume from it.
type MemoryQueue struct {
	ch        chan Message
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue creates a bounded in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		ch:   make(chan Message, memoryQueueDepth),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg Message) error {
	// Checked first: select picks randomly among ready cases, and the
	// buffered channel is usually ready even after Close.
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- msg:
		return nil
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (*Message, error) {
	select {
	case <-q.done:
		return nil, ErrClosed
	default:
	}
	select {
	case <-q.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-q.ch:
		return &msg, nil
	}
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
