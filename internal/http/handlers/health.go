package handlers

import (
	"context"
	"fmt"

	"github.com/7and1/robotscraping/internal/version"
)

const serviceName = "robot-api"

// HealthCheckOutput represents the health check response.
type HealthCheckOutput struct {
	Body struct {
		OK        bool   `json:"ok"`
		Service   string `json:"service"`
		Version   string `json:"version"`
		RequestID string `json:"requestId,omitempty"`
	}
}

// HealthCheck returns the health status of the API.
func (h *Handlers) HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.OK = true
	out.Body.Service = serviceName
	out.Body.Version = version.Get().Version
	out.Body.RequestID = requestID(ctx)
	return out, nil
}

// ProbeOutput is the orchestrator probe response.
type ProbeOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports process liveness. It never touches dependencies.
func (h *Handlers) Livez(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// Readyz reports readiness to serve traffic, gated on database reachability.
func (h *Handlers) Readyz(ctx context.Context, input *struct{}) (*ProbeOutput, error) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			return nil, fmt.Errorf("database not ready: %w", err)
		}
	}
	out := &ProbeOutput{}
	out.Body.Status = "ok"
	return out, nil
}
