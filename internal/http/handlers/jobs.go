package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/service"
)

// JobView is the client-facing job representation. Webhook secrets and the
// raw stored parameters never leave the server.
type JobView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	URL         string     `json:"url"`
	ScheduleID  string     `json:"scheduleId,omitempty"`
	WebhookURL  string     `json:"webhookUrl,omitempty"`
	TokenUsage  int        `json:"tokenUsage"`
	LatencyMs   int        `json:"latencyMs"`
	Blocked     bool       `json:"blocked"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func newJobView(job *models.Job) JobView {
	return JobView{
		ID:          job.ID,
		Status:      string(job.Status),
		URL:         job.URL,
		ScheduleID:  job.ScheduleID,
		WebhookURL:  job.WebhookURL,
		TokenUsage:  job.TokenUsage,
		LatencyMs:   job.LatencyMs,
		Blocked:     job.Blocked,
		Error:       job.ErrorMsg,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Limit  int `query:"limit" default:"20" minimum:"1" maximum:"100"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Success   bool      `json:"success"`
		RequestID string    `json:"requestId,omitempty"`
		Jobs      []JobView `json:"jobs"`
	}
}

// ListJobs returns the caller's jobs, newest first.
func (h *Handlers) ListJobs(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	jobs, err := h.services.Job.List(ctx, keyID(ctx), input.Limit, input.Offset)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &ListJobsOutput{}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Jobs = make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out.Body.Jobs = append(out.Body.Jobs, newJobView(job))
	}
	return out, nil
}

// GetJobInput is the input for fetching one job.
type GetJobInput struct {
	ID string `path:"id"`
}

// GetJobOutput is the output for fetching one job.
type GetJobOutput struct {
	Body struct {
		Success   bool    `json:"success"`
		RequestID string  `json:"requestId,omitempty"`
		Job       JobView `json:"job"`
	}
}

// GetJob returns one job owned by the caller.
func (h *Handlers) GetJob(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, err := h.services.Job.Get(ctx, keyID(ctx), input.ID)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &GetJobOutput{}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Job = newJobView(job)
	return out, nil
}

// GetJobResultOutput is the output for fetching a job result.
type GetJobResultOutput struct {
	Body struct {
		Success   bool                    `json:"success"`
		RequestID string                  `json:"requestId,omitempty"`
		Job       JobView                 `json:"job"`
		Result    *service.ResultDocument `json:"result,omitempty"`
	}
}

// GetJobResult returns the stored result document for a finished job. Jobs
// still in flight answer 409; failed and blocked jobs answer with the job
// record and no result.
func (h *Handlers) GetJobResult(ctx context.Context, input *GetJobInput) (*GetJobResultOutput, error) {
	job, blob, err := h.services.Job.Result(ctx, keyID(ctx), input.ID)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &GetJobResultOutput{}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Job = newJobView(job)
	if len(blob) > 0 {
		doc := &service.ResultDocument{}
		if err := json.Unmarshal(blob, doc); err != nil {
			h.logger.Error("stored result undecodable", "job_id", job.ID, "error", err)
			return nil, h.mapErr(err)
		}
		out.Body.Result = doc
	}
	return out, nil
}
