// Package queue decouples job admission from job execution.
package queue

import (
	"context"
	"errors"
)

// ErrClosed is returned when the queue has been shut down.
var ErrClosed = errors.New("queue closed")

// Message is one unit of work: run the extraction for a job.
type Message struct {
	JobID string `json:"job_id"`
}

// Queue is the transport between the admission path and the workers.
// Dequeue blocks until a message arrives, the timeout passes (nil message),
// or ctx is cancelled.
type Queue interface {
	Enqueue(ctx context.Context, msg Message) error
	Dequeue(ctx context.Context) (*Message, error)
	Close() error
}
