// Package handlers contains the HTTP handlers for the API.
package handlers

import (
	"context"
	"log/slog"

	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/http/mw"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/service"
)

// DBPinger is the readiness-probe view of the database handle.
type DBPinger interface {
	Ping() error
}

// Handlers aggregates the HTTP handlers and their dependencies.
type Handlers struct {
	cfg      *config.Config
	services *service.Services
	repos    *repository.Repositories
	db       DBPinger
	logger   *slog.Logger
}

// New creates the handler set.
func New(cfg *config.Config, services *service.Services, repos *repository.Repositories, db DBPinger, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		cfg:      cfg,
		services: services,
		repos:    repos,
		db:       db,
		logger:   logger,
	}
}

// keyID returns the authenticated API key id, or "" in anonymous mode.
func keyID(ctx context.Context) string {
	return mw.APIKeyID(ctx)
}

// requestID echoes the X-Request-ID value into response bodies.
func requestID(ctx context.Context) string {
	return mw.RequestIDFromContext(ctx)
}

// jobURL is the polling location returned with queued jobs.
func (h *Handlers) jobURL(id string) string {
	return h.cfg.BaseURL + "/v1/jobs/" + id
}

func (h *Handlers) jobsURL() string {
	return h.cfg.BaseURL + "/v1/jobs"
}
