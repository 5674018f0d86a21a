// Package llm provides the provider-agnostic extraction contract and the
// provider adapters behind it.
package llm

import (
	"context"
	"errors"
)

// Sentinel errors surfaced to callers.
var (
	// ErrCircuitOpen indicates the provider's circuit breaker is open and
	// the call failed fast without reaching the provider.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrNoContent indicates the provider returned an empty reply.
	ErrNoContent = errors.New("provider returned no content")
)

// Request carries everything one extraction call needs.
type Request struct {
	Model        string
	Content      string
	Fields       []string
	Schema       map[string]any
	Instructions string
}

// Result is the outcome of one extraction call.
type Result struct {
	Data  map[string]any `json:"data"`
	Usage int            `json:"usage"` // total tokens
	Raw   string         `json:"raw,omitempty"`
	// ParseError is set when the reply was not valid JSON and Data fell
	// back to an empty object.
	ParseError string `json:"parse_error,omitempty"`
}

// Provider is one concrete LLM backend.
type Provider interface {
	// Name identifies the backend in logs and breaker state.
	Name() string
	// Extract runs one structured-extraction call.
	Extract(ctx context.Context, req Request) (*Result, error)
}
