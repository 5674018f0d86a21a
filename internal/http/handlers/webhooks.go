package handlers

import (
	"context"
	"fmt"

	"github.com/7and1/robotscraping/internal/validation"
)

// TestWebhookInput is the input for the webhook test endpoint.
type TestWebhookInput struct {
	Body struct {
		URL    string `json:"url" doc:"Endpoint to deliver the test event to"`
		Secret string `json:"secret,omitempty" doc:"Signing secret; defaults to the server-wide secret"`
	}
}

// TestWebhookOutput is the output for the webhook test endpoint.
type TestWebhookOutput struct {
	Body struct {
		Success   bool   `json:"success"`
		RequestID string `json:"requestId,omitempty"`
		Delivered bool   `json:"delivered"`
		Error     string `json:"error,omitempty"`
	}
}

// TestWebhook sends one signed test event to the given endpoint so callers
// can verify their receiver before wiring it to real jobs.
func (h *Handlers) TestWebhook(ctx context.Context, input *TestWebhookInput) (*TestWebhookOutput, error) {
	if input.Body.URL == "" {
		return nil, badRequest(fmt.Errorf("url is required"))
	}
	if err := validation.ValidateWebhook(input.Body.URL); err != nil {
		return nil, badRequest(err)
	}

	out := &TestWebhookOutput{}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	if err := h.services.Webhook.Test(ctx, input.Body.URL, input.Body.Secret); err != nil {
		out.Body.Delivered = false
		out.Body.Error = err.Error()
		return out, nil
	}
	out.Body.Delivered = true
	return out, nil
}
