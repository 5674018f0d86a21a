package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/repository"
)

// Jobs stuck in processing longer than this are presumed lost to a crashed
// worker and failed so their webhooks still fire through normal channels.
const staleJobAge = 10 * time.Minute

// JanitorService removes expired cache and idempotency entries, prunes old
// logs and jobs, and recovers jobs orphaned by dead workers.
type JanitorService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	logger *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewJanitorService creates a new janitor.
func NewJanitorService(cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) *JanitorService {
	return &JanitorService{
		cfg:    cfg,
		repos:  repos,
		logger: logger,
		stop:   make(chan struct{}),
	}
}

// Start launches the sweep loop in a goroutine.
func (s *JanitorService) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.JanitorInterval)
		defer ticker.Stop()

		s.logger.Info("janitor started", "interval", s.cfg.JanitorInterval, "retention", s.cfg.LogRetention)
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop signals the loop and waits for it to finish.
func (s *JanitorService) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunOnce performs one sweep. Each step is independent; a failing step is
// logged and the rest still run.
func (s *JanitorService) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	cutoff := now.Add(-s.cfg.LogRetention)

	if n, err := s.repos.Cache.DeleteExpired(ctx, now); err != nil {
		s.logger.Error("failed to sweep cache entries", "error", err)
	} else if n > 0 {
		s.logger.Info("swept expired cache entries", "count", n)
	}

	if n, err := s.repos.Idempotency.DeleteExpired(ctx, now); err != nil {
		s.logger.Error("failed to sweep idempotency entries", "error", err)
	} else if n > 0 {
		s.logger.Info("swept expired idempotency entries", "count", n)
	}

	if n, err := s.repos.RateLimits.CleanupExpired(ctx, now); err != nil {
		s.logger.Error("failed to sweep rate limit windows", "error", err)
	} else if n > 0 {
		s.logger.Info("swept stale rate limit windows", "count", n)
	}

	if n, err := s.repos.Jobs.MarkStaleProcessingFailed(ctx, staleJobAge); err != nil {
		s.logger.Error("failed to recover stale jobs", "error", err)
	} else if n > 0 {
		s.logger.Warn("recovered jobs stuck in processing", "count", n)
	}

	if n, err := s.repos.Logs.DeleteOlderThan(ctx, cutoff); err != nil {
		s.logger.Error("failed to prune scrape logs", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned old scrape logs", "count", n)
	}

	if n, err := s.repos.Jobs.DeleteOlderThan(ctx, cutoff); err != nil {
		s.logger.Error("failed to prune old jobs", "error", err)
	} else if n > 0 {
		s.logger.Info("pruned old jobs", "count", n)
	}
}
