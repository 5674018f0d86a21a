// Package routes wires the HTTP surface: the chi router, its middleware
// chain, and the Huma operation registrations.
package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/7and1/robotscraping/internal/http/mw"
	"github.com/7and1/robotscraping/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Robot Scraping API", version.Get().Version)
	cfg.Info.Description = "AI-assisted web extraction API: renders a page in a headless browser and returns structured JSON shaped by your fields or schema."

	// Disable $schema field in responses - it conflicts with "schema" fields
	// in SDK code generators
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:        "apiKey",
			In:          "header",
			Name:        mw.APIKeyHeader,
			Description: "API key authentication. Send your key in the x-api-key header, or as `Authorization: Bearer rk_live_your_key`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Extraction", Description: "Synchronous and asynchronous data extraction", Extensions: map[string]any{"x-displayName": "Extraction"}},
		{Name: "Jobs", Description: "Job status and result retrieval", Extensions: map[string]any{"x-displayName": "Jobs"}},
		{Name: "Schedules", Description: "Recurring extractions on a cron expression", Extensions: map[string]any{"x-displayName": "Schedules"}},
		{Name: "Webhooks", Description: "Webhook delivery testing", Extensions: map[string]any{"x-displayName": "Webhooks"}},
		{Name: "Usage", Description: "Usage statistics and history export", Extensions: map[string]any{"x-displayName": "Usage"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
