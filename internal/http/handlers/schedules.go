package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/schedule"
	"github.com/7and1/robotscraping/internal/service"
	"github.com/7and1/robotscraping/internal/validation"
)

// ScheduleView is the client-facing schedule representation.
type ScheduleView struct {
	ID         string     `json:"id"`
	Cron       string     `json:"cron"`
	URL        string     `json:"url"`
	WebhookURL string     `json:"webhookUrl,omitempty"`
	IsActive   bool       `json:"isActive"`
	NextRunAt  time.Time  `json:"nextRunAt"`
	LastRunAt  *time.Time `json:"lastRunAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func newScheduleView(s *models.Schedule) ScheduleView {
	return ScheduleView{
		ID:         s.ID,
		Cron:       s.Cron,
		URL:        s.URL,
		WebhookURL: s.WebhookURL,
		IsActive:   s.IsActive,
		NextRunAt:  s.NextRunAt,
		LastRunAt:  s.LastRunAt,
		CreatedAt:  s.CreatedAt,
	}
}

// CreateScheduleInput is the input for creating a schedule.
type CreateScheduleInput struct {
	Body struct {
		Cron          string                 `json:"cron" example:"0 6 * * *" doc:"Five-field cron expression, UTC"`
		URL           string                 `json:"url"`
		Fields        []string               `json:"fields,omitempty"`
		Schema        map[string]any         `json:"schema,omitempty"`
		Instructions  string                 `json:"instructions,omitempty"`
		Options       *models.ExtractOptions `json:"options,omitempty"`
		WebhookURL    string                 `json:"webhookUrl,omitempty"`
		WebhookSecret string                 `json:"webhookSecret,omitempty"`
	}
}

// ScheduleOutput is the output wrapping one schedule.
type ScheduleOutput struct {
	Status int
	Body   struct {
		Success   bool         `json:"success"`
		RequestID string       `json:"requestId,omitempty"`
		Schedule  ScheduleView `json:"schedule"`
	}
}

// CreateSchedule registers a recurring extraction.
func (h *Handlers) CreateSchedule(ctx context.Context, input *CreateScheduleInput) (*ScheduleOutput, error) {
	if _, err := schedule.Parse(input.Body.Cron); err != nil {
		return nil, badRequest(err)
	}
	params := &models.ExtractParams{
		URL:          input.Body.URL,
		Fields:       input.Body.Fields,
		Schema:       input.Body.Schema,
		Instructions: input.Body.Instructions,
		Options:      input.Body.Options,
	}
	if err := validation.ValidateExtract(params); err != nil {
		return nil, badRequest(err)
	}
	if err := validation.ValidateWebhook(input.Body.WebhookURL); err != nil {
		return nil, badRequest(err)
	}

	sched, err := h.services.Schedule.Create(ctx, keyID(ctx), input.Body.Cron, params, input.Body.WebhookURL, input.Body.WebhookSecret)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &ScheduleOutput{Status: http.StatusCreated}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Schedule = newScheduleView(sched)
	return out, nil
}

// ListSchedulesInput is the input for listing schedules.
type ListSchedulesInput struct {
	Limit  int `query:"limit" default:"20" minimum:"1" maximum:"100"`
	Offset int `query:"offset" default:"0" minimum:"0"`
}

// ListSchedulesOutput is the output for listing schedules.
type ListSchedulesOutput struct {
	Body struct {
		Success   bool           `json:"success"`
		RequestID string         `json:"requestId,omitempty"`
		Schedules []ScheduleView `json:"schedules"`
	}
}

// ListSchedules returns the caller's schedules.
func (h *Handlers) ListSchedules(ctx context.Context, input *ListSchedulesInput) (*ListSchedulesOutput, error) {
	schedules, err := h.services.Schedule.List(ctx, keyID(ctx), input.Limit, input.Offset)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &ListSchedulesOutput{}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Schedules = make([]ScheduleView, 0, len(schedules))
	for _, s := range schedules {
		out.Body.Schedules = append(out.Body.Schedules, newScheduleView(s))
	}
	return out, nil
}

// GetScheduleInput is the input for fetching one schedule.
type GetScheduleInput struct {
	ID string `path:"id"`
}

// GetSchedule returns one schedule owned by the caller.
func (h *Handlers) GetSchedule(ctx context.Context, input *GetScheduleInput) (*ScheduleOutput, error) {
	sched, err := h.services.Schedule.Get(ctx, keyID(ctx), input.ID)
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &ScheduleOutput{Status: http.StatusOK}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Schedule = newScheduleView(sched)
	return out, nil
}

// UpdateScheduleInput is the input for patching a schedule. Absent fields are
// left unchanged.
type UpdateScheduleInput struct {
	ID   string `path:"id"`
	Body struct {
		Cron          *string                `json:"cron,omitempty"`
		Params        *models.ExtractParams  `json:"params,omitempty"`
		WebhookURL    *string                `json:"webhookUrl,omitempty"`
		WebhookSecret *string                `json:"webhookSecret,omitempty"`
		IsActive      *bool                  `json:"isActive,omitempty"`
	}
}

// UpdateSchedule applies a partial update. Changing the cron expression
// recomputes the next firing from now.
func (h *Handlers) UpdateSchedule(ctx context.Context, input *UpdateScheduleInput) (*ScheduleOutput, error) {
	if input.Body.Cron != nil {
		if _, err := schedule.Parse(*input.Body.Cron); err != nil {
			return nil, badRequest(err)
		}
	}
	if input.Body.Params != nil {
		if err := validation.ValidateExtract(input.Body.Params); err != nil {
			return nil, badRequest(err)
		}
	}
	if input.Body.WebhookURL != nil {
		if err := validation.ValidateWebhook(*input.Body.WebhookURL); err != nil {
			return nil, badRequest(err)
		}
	}

	sched, err := h.services.Schedule.Update(ctx, keyID(ctx), input.ID, service.ScheduleUpdate{
		Cron:          input.Body.Cron,
		Params:        input.Body.Params,
		WebhookURL:    input.Body.WebhookURL,
		WebhookSecret: input.Body.WebhookSecret,
		IsActive:      input.Body.IsActive,
	})
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &ScheduleOutput{Status: http.StatusOK}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Schedule = newScheduleView(sched)
	return out, nil
}

// DeleteSchedule removes a schedule owned by the caller.
func (h *Handlers) DeleteSchedule(ctx context.Context, input *GetScheduleInput) (*struct{}, error) {
	if err := h.services.Schedule.Delete(ctx, keyID(ctx), input.ID); err != nil {
		return nil, h.mapErr(err)
	}
	return &struct{}{}, nil
}
