package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/7and1/robotscraping/internal/config"
)

// candidate is one (provider, model) pair in the fallback order.
type candidate struct {
	provider Provider
	model    string
}

// Client fans an extraction call out to the configured provider, rotating
// through key and model fallbacks, behind a circuit breaker.
type Client struct {
	candidates []candidate
	breaker    *CircuitBreaker
	logger     *slog.Logger
}

// NewClient builds the extraction client for the active provider. For
// OpenRouter-style configurations every (model x key) combination becomes a
// fallback candidate, primary model and key first.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pc := cfg.Provider()
	if pc.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %s", cfg.AIProvider)
	}

	var candidates []candidate
	switch cfg.AIProvider {
	case "anthropic":
		candidates = append(candidates, candidate{
			provider: NewAnthropicProvider(pc.APIKey, pc.Model, logger),
			model:    pc.Model,
		})
	default:
		keys := append([]string{pc.APIKey}, pc.ExtraKeys...)
		models := append([]string{pc.Model}, pc.FallbackModels...)
		for _, model := range models {
			for _, key := range keys {
				candidates = append(candidates, candidate{
					provider: NewOpenAIProvider(cfg.AIProvider, key, model, pc.BaseURL, logger),
					model:    model,
				})
			}
		}
	}

	return &Client{
		candidates: candidates,
		breaker:    NewCircuitBreaker(0, 0, 0),
		logger:     logger,
	}, nil
}

// Extract runs the call against the candidates in order. A transport or
// provider failure moves to the next candidate; a parse failure does not,
// because the provider itself is healthy.
func (c *Client) Extract(ctx context.Context, req Request) (*Result, error) {
	if !c.breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	var lastErr error
	for i, cand := range c.candidates {
		r := req
		r.Model = cand.model
		result, err := cand.provider.Extract(ctx, r)
		if err == nil {
			c.breaker.RecordSuccess()
			return result, nil
		}
		lastErr = err
		if i < len(c.candidates)-1 {
			c.logger.Warn("extraction candidate failed, trying next",
				"provider", cand.provider.Name(), "model", cand.model, "error", err)
		}
		if ctx.Err() != nil {
			break
		}
	}

	c.breaker.RecordFailure()
	return nil, fmt.Errorf("all extraction candidates failed: %w", lastErr)
}
