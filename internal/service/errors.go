package service

import "errors"

// Sentinel errors surfaced to the transport layer, which maps them onto the
// error envelope.
var (
	// ErrUnauthorized means the presented API key is unknown or inactive.
	ErrUnauthorized = errors.New("invalid or inactive API key")

	// ErrNotFound means the requested resource does not exist or belongs to
	// a different key. The two cases are indistinguishable on purpose.
	ErrNotFound = errors.New("not found")

	// ErrNotReady means a job result was requested before the job reached a
	// terminal state.
	ErrNotReady = errors.New("job is not finished")

	// ErrBlocked means the target site refused to serve the page even after
	// the fallback fetch path.
	ErrBlocked = errors.New("target site blocked the request")

	// ErrQueueUnavailable means a job could not be handed to the queue.
	ErrQueueUnavailable = errors.New("job queue unavailable")
)
