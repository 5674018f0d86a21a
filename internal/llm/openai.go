package llm

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint.
// With a base URL it also covers OpenRouter and self-hosted gateways.
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
	logger *slog.Logger
}

// NewOpenAIProvider creates a provider. name distinguishes backends sharing
// this adapter (openai, openrouter, custom) in logs and breaker state.
func NewOpenAIProvider(name, apiKey, model, baseURL string, logger *slog.Logger) *OpenAIProvider {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		name:   name,
		model:  model,
		client: openai.NewClientWithConfig(cfg),
		logger: logger,
	}
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Extract(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystemPrompt(req)},
			{Role: openai.ChatMessageRoleUser, Content: BuildUserPrompt(req)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoContent
	}

	raw := resp.Choices[0].Message.Content
	result := &Result{
		Usage: resp.Usage.TotalTokens,
		Raw:   raw,
	}
	data, err := CoerceJSON(raw)
	result.Data = data
	if err != nil {
		result.ParseError = err.Error()
		p.logger.Warn("model reply was not valid JSON", "provider", p.name, "model", model)
	}
	return result, nil
}
