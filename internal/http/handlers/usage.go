package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/http/mw"
	"github.com/7and1/robotscraping/internal/service"
)

// GetUsageOutput is the output for the usage report.
type GetUsageOutput struct {
	Body struct {
		Success   bool                 `json:"success"`
		RequestID string               `json:"requestId,omitempty"`
		Usage     *service.UsageReport `json:"usage"`
	}
}

// GetUsage returns the caller's usage summary, daily series, and recent
// extractions.
func (h *Handlers) GetUsage(ctx context.Context, input *struct{}) (*GetUsageOutput, error) {
	report, err := h.services.Usage.Report(ctx, keyID(ctx))
	if err != nil {
		return nil, h.mapErr(err)
	}

	out := &GetUsageOutput{}
	out.Body.Success = true
	out.Body.RequestID = requestID(ctx)
	out.Body.Usage = report
	return out, nil
}

// ExportUsageCSV streams the caller's extraction history as CSV. Registered
// as a raw route because the response is not JSON.
func (h *Handlers) ExportUsageCSV(w http.ResponseWriter, r *http.Request) {
	apiKeyID, ok := h.authenticateRaw(w, r)
	if !ok {
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)
	var err error
	if from, err = parseDateParam(r, "from", from); err != nil {
		mw.WriteError(w, r, apperr.New(apperr.CodeBadRequest, "from must be an RFC3339 timestamp or YYYY-MM-DD date"))
		return
	}
	if to, err = parseDateParam(r, "to", to); err != nil {
		mw.WriteError(w, r, apperr.New(apperr.CodeBadRequest, "to must be an RFC3339 timestamp or YYYY-MM-DD date"))
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="usage.csv"`)
	if err := h.services.Usage.ExportCSV(r.Context(), w, apiKeyID, from, to); err != nil {
		// Headers are gone; all we can do is log.
		h.logger.Error("usage export failed", "error", err)
	}
}

// authenticateRaw applies API key auth to a raw (non-huma) route.
func (h *Handlers) authenticateRaw(w http.ResponseWriter, r *http.Request) (string, bool) {
	presented := r.Header.Get(mw.APIKeyHeader)
	if presented == "" {
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
	}
	if presented == "" {
		if h.cfg.AllowAnonymous {
			return "", true
		}
		mw.WriteError(w, r, apperr.New(apperr.CodeUnauthorized, "missing API key"))
		return "", false
	}

	key, err := h.services.Auth.Authenticate(r.Context(), presented)
	if err != nil {
		mw.WriteError(w, r, apperr.New(apperr.CodeUnauthorized, "invalid or inactive API key"))
		return "", false
	}
	return key.ID, true
}

func parseDateParam(r *http.Request, name string, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), nil
	}
	ts, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
