package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/service"
	"github.com/7and1/robotscraping/internal/validation"
)

// ExtractRequestBody is the extraction request. With async set the request
// becomes a queued job and the response carries the job id instead of data.
type ExtractRequestBody struct {
	URL           string                 `json:"url" example:"https://example.com/product" doc:"Page to extract from"`
	Fields        []string               `json:"fields,omitempty" doc:"Field names to extract"`
	Schema        map[string]any         `json:"schema,omitempty" doc:"JSON schema describing the result shape"`
	Instructions  string                 `json:"instructions,omitempty" doc:"Freeform extraction hints"`
	Options       *models.ExtractOptions `json:"options,omitempty"`
	Async         bool                   `json:"async,omitempty" doc:"Queue the extraction and return a job id"`
	WebhookURL    string                 `json:"webhook_url,omitempty" doc:"Called when an async job finishes"`
	WebhookSecret string                 `json:"webhook_secret,omitempty" doc:"Overrides the default webhook signing secret"`
}

func (b *ExtractRequestBody) params() *models.ExtractParams {
	return &models.ExtractParams{
		URL:          b.URL,
		Fields:       b.Fields,
		Schema:       b.Schema,
		Instructions: b.Instructions,
		Options:      b.Options,
	}
}

// ExtractInput is the input for the extract endpoint.
type ExtractInput struct {
	Body ExtractRequestBody
}

// ExtractResponseBody is the extract response for both modes.
type ExtractResponseBody struct {
	Success   bool                `json:"success"`
	RequestID string              `json:"requestId,omitempty"`
	Data      map[string]any      `json:"data,omitempty"`
	Meta      *service.ResultMeta `json:"meta,omitempty"`
	JobID     string              `json:"job_id,omitempty"`
	Status    string              `json:"status,omitempty"`
	StatusURL string              `json:"status_url,omitempty"`
}

// ExtractOutput is the output for the extract endpoint.
type ExtractOutput struct {
	Status   int
	CacheHit string `header:"X-Cache-Hit"`
	Body     ExtractResponseBody
}

// Extract runs a synchronous extraction, or queues a job when async is set.
func (h *Handlers) Extract(ctx context.Context, input *ExtractInput) (*ExtractOutput, error) {
	params := input.Body.params()
	if err := validation.ValidateExtract(params); err != nil {
		return nil, badRequest(err)
	}
	apiKeyID := keyID(ctx)

	if input.Body.Async {
		if err := validation.ValidateWebhook(input.Body.WebhookURL); err != nil {
			return nil, badRequest(err)
		}
		job, err := h.services.Job.Create(ctx, apiKeyID, params, input.Body.WebhookURL, input.Body.WebhookSecret)
		if err != nil {
			return nil, h.mapErr(err)
		}
		out := &ExtractOutput{Status: http.StatusAccepted}
		out.Body = ExtractResponseBody{
			Success:   true,
			RequestID: requestID(ctx),
			JobID:     job.ID,
			Status:    string(job.Status),
			StatusURL: h.jobURL(job.ID),
		}
		return out, nil
	}

	// One credit per synchronous request, cache hits included.
	if apiKeyID != "" {
		if _, err := h.services.Auth.Charge(ctx, apiKeyID, 1); err != nil {
			return nil, h.mapErr(err)
		}
	}

	outcome, err := h.services.Extraction.Extract(ctx, apiKeyID, params)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &ExtractOutput{Status: http.StatusOK, CacheHit: "false"}
	if outcome.CacheHit {
		out.CacheHit = "true"
	}
	meta := outcome.Document.Meta
	meta.Cache = &service.CacheMeta{Hit: outcome.CacheHit, AgeMs: outcome.CacheAgeMs}
	out.Body = ExtractResponseBody{
		Success:   true,
		RequestID: requestID(ctx),
		Data:      outcome.Document.Data,
		Meta:      &meta,
	}
	return out, nil
}

// BatchInput is the input for the batch endpoint.
type BatchInput struct {
	Body struct {
		Items         []ExtractRequestBody `json:"items" doc:"One extraction request per entry"`
		WebhookURL    string               `json:"webhook_url,omitempty" doc:"Called once per job as it finishes"`
		WebhookSecret string               `json:"webhook_secret,omitempty"`
	}
}

// BatchOutput is the output for the batch endpoint.
type BatchOutput struct {
	Status int
	Body   struct {
		Success   bool     `json:"success"`
		RequestID string   `json:"requestId,omitempty"`
		JobIDs    []string `json:"job_ids"`
		Count     int      `json:"count"`
		StatusURL string   `json:"status_url"`
	}
}

// Batch queues one job per entry, charging for the whole batch up front.
func (h *Handlers) Batch(ctx context.Context, input *BatchInput) (*BatchOutput, error) {
	if len(input.Body.Items) == 0 {
		return nil, badRequest(fmt.Errorf("items must contain at least one request"))
	}
	if len(input.Body.Items) > h.cfg.MaxBatchSize {
		return nil, badRequest(fmt.Errorf("batch exceeds the maximum of %d requests", h.cfg.MaxBatchSize))
	}

	items := make([]*models.ExtractParams, 0, len(input.Body.Items))
	for i := range input.Body.Items {
		params := input.Body.Items[i].params()
		if err := validation.ValidateExtract(params); err != nil {
			return nil, badRequest(fmt.Errorf("item %d: %w", i, err))
		}
		items = append(items, params)
	}
	if err := validation.ValidateWebhook(input.Body.WebhookURL); err != nil {
		return nil, badRequest(err)
	}

	jobs, err := h.services.Job.CreateBatch(ctx, keyID(ctx), items, input.Body.WebhookURL, input.Body.WebhookSecret)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &BatchOutput{Status: http.StatusAccepted}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.JobIDs = make([]string, 0, len(jobs))
	for _, job := range jobs {
		out.Body.JobIDs = append(out.Body.JobIDs, job.ID)
	}
	out.Body.Count = len(jobs)
	out.Body.StatusURL = h.jobsURL()
	return out, nil
}
