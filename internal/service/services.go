// Package service contains the business logic layer: authentication and
// credits, the extraction pipeline, jobs, schedules, webhooks, usage
// reporting, and retention sweeps.
package service

import (
	"fmt"
	"log/slog"

	"github.com/7and1/robotscraping/internal/browser"
	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/llm"
	"github.com/7and1/robotscraping/internal/queue"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/storage"
)

// Services holds all service instances.
type Services struct {
	Auth       *AuthService
	APIKey     *APIKeyService
	Extraction *ExtractionService
	Job        *JobService
	Schedule   *ScheduleService
	Webhook    *WebhookService
	Usage      *UsageService
	Janitor    *JanitorService
}

// NewServices creates all service instances.
func NewServices(cfg *config.Config, repos *repository.Repositories, store storage.Store, q queue.Queue, logger *slog.Logger) (*Services, error) {
	var encryptor *crypto.Encryptor
	if cfg.MasterSecret != "" {
		var err error
		encryptor, err = crypto.NewEncryptor(crypto.DeriveKey(cfg.MasterSecret))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
	} else {
		logger.Warn("no master secret configured, webhook secrets stored unencrypted")
	}

	extractor, err := llm.NewClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	renderer := browser.NewAdapter(cfg.RendererURL, cfg.BrowserTimeout, cfg.MaxContentChars, logger)
	var proxy ProxyFetcher
	if cfg.ProxyFallbackURL != "" {
		proxy = browser.NewProxyClient(cfg.ProxyFallbackURL, cfg.ProxyFallbackSecret, cfg.BrowserTimeout, cfg.MaxContentChars, logger)
	}

	return &Services{
		Auth:       NewAuthService(repos, logger),
		APIKey:     NewAPIKeyService(repos, logger),
		Extraction: NewExtractionService(cfg, repos, store, renderer, proxy, extractor, logger),
		Job:        NewJobService(cfg, repos, store, q, encryptor, logger),
		Schedule:   NewScheduleService(repos, encryptor, logger),
		Webhook:    NewWebhookService(repos, store, encryptor, cfg.WebhookDefaultSecret, logger),
		Usage:      NewUsageService(repos, logger),
		Janitor:    NewJanitorService(cfg, repos, logger),
	}, nil
}
