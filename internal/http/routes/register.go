package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/7and1/robotscraping/internal/http/handlers"
	"github.com/7and1/robotscraping/internal/http/mw"
)

// Register registers all API routes with the given Huma API instance.
func Register(api huma.API, h *handlers.Handlers) {
	// Public routes
	mw.PublicGet(api, "/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Orchestrator probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	// --- Extraction ---
	mw.ProtectedPost(api, "/v1/extract", h.Extract,
		mw.WithTags("Extraction"),
		mw.WithSummary("Extract data from a URL"),
		mw.WithDescription("Renders the page and extracts structured JSON. Set async to queue the extraction and receive a job id instead."),
		mw.WithOperationID("extract"))
	mw.ProtectedPost(api, "/v1/batch", h.Batch,
		mw.WithTags("Extraction"),
		mw.WithSummary("Queue a batch of extractions"),
		mw.WithOperationID("batchExtract"),
		mw.WithDefaultStatus(http.StatusAccepted))

	// --- Jobs ---
	mw.ProtectedGet(api, "/v1/jobs", h.ListJobs,
		mw.WithTags("Jobs"),
		mw.WithSummary("List jobs"),
		mw.WithOperationID("listJobs"))
	mw.ProtectedGet(api, "/v1/jobs/{id}", h.GetJob,
		mw.WithTags("Jobs"),
		mw.WithSummary("Get job details"),
		mw.WithOperationID("getJob"))
	mw.ProtectedGet(api, "/v1/jobs/{id}/result", h.GetJobResult,
		mw.WithTags("Jobs"),
		mw.WithSummary("Get job result"),
		mw.WithOperationID("getJobResult"))

	// --- Schedules ---
	mw.ProtectedPost(api, "/v1/schedules", h.CreateSchedule,
		mw.WithTags("Schedules"),
		mw.WithSummary("Create schedule"),
		mw.WithOperationID("createSchedule"),
		mw.WithDefaultStatus(http.StatusCreated))
	mw.ProtectedGet(api, "/v1/schedules", h.ListSchedules,
		mw.WithTags("Schedules"),
		mw.WithSummary("List schedules"),
		mw.WithOperationID("listSchedules"))
	mw.ProtectedGet(api, "/v1/schedules/{id}", h.GetSchedule,
		mw.WithTags("Schedules"),
		mw.WithSummary("Get schedule"),
		mw.WithOperationID("getSchedule"))
	mw.ProtectedPatch(api, "/v1/schedules/{id}", h.UpdateSchedule,
		mw.WithTags("Schedules"),
		mw.WithSummary("Update schedule"),
		mw.WithOperationID("updateSchedule"))
	mw.ProtectedDelete(api, "/v1/schedules/{id}", h.DeleteSchedule,
		mw.WithTags("Schedules"),
		mw.WithSummary("Delete schedule"),
		mw.WithOperationID("deleteSchedule"),
		mw.WithDefaultStatus(http.StatusNoContent))

	// --- Usage ---
	mw.ProtectedGet(api, "/v1/usage", h.GetUsage,
		mw.WithTags("Usage"),
		mw.WithSummary("Get usage statistics"),
		mw.WithOperationID("getUsage"))

	// --- Webhooks ---
	mw.ProtectedPost(api, "/v1/webhooks/test", h.TestWebhook,
		mw.WithTags("Webhooks"),
		mw.WithSummary("Send a test webhook"),
		mw.WithOperationID("testWebhook"))

	// --- Admin (gated on x-admin-secret, hidden from docs) ---
	mw.HiddenPost(api, "/v1/admin/keys", h.CreateKey,
		mw.WithOperationID("adminCreateKey"),
		mw.WithDefaultStatus(http.StatusCreated))
	mw.HiddenPost(api, "/v1/admin/keys/{id}/credits", h.TopUpKey,
		mw.WithOperationID("adminTopUpKey"))
}
