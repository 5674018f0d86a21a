package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/schedule"
	"github.com/7and1/robotscraping/internal/validation"
)

// ScheduleService manages recurring extraction schedules. The scheduler loop
// that fires them lives in the schedule package.
type ScheduleService struct {
	repos     *repository.Repositories
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

// NewScheduleService creates a new schedule service. encryptor may be nil.
func NewScheduleService(repos *repository.Repositories, encryptor *crypto.Encryptor, logger *slog.Logger) *ScheduleService {
	return &ScheduleService{repos: repos, encryptor: encryptor, logger: logger}
}

// ScheduleUpdate carries the mutable fields of a schedule. Nil fields are
// left unchanged.
type ScheduleUpdate struct {
	Cron          *string
	Params        *models.ExtractParams
	WebhookURL    *string
	WebhookSecret *string
	IsActive      *bool
}

// Create validates and stores a new schedule. The first firing is the next
// cron match after now.
func (s *ScheduleService) Create(ctx context.Context, apiKeyID, cronExpr string, params *models.ExtractParams, webhookURL, webhookSecret string) (*models.Schedule, error) {
	if err := validation.ValidateCron(cronExpr); err != nil {
		return nil, err
	}
	next, err := schedule.NextAfter(cronExpr, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateExtract(params); err != nil {
		return nil, err
	}
	if webhookURL != "" {
		if err := validation.ValidateWebhook(webhookURL); err != nil {
			return nil, err
		}
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schedule params: %w", err)
	}
	storedSecret, err := s.encryptSecret(webhookSecret)
	if err != nil {
		return nil, err
	}

	sched := &models.Schedule{
		ID:            uuid.NewString(),
		APIKeyID:      apiKeyID,
		Cron:          cronExpr,
		URL:           params.URL,
		ParamsJSON:    string(paramsJSON),
		WebhookURL:    webhookURL,
		WebhookSecret: storedSecret,
		IsActive:      true,
		NextRunAt:     next,
	}
	if err := s.repos.Schedules.Create(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to store schedule: %w", err)
	}

	s.logger.Info("schedule created", "schedule_id", sched.ID, "cron", cronExpr, "next_run_at", next)
	return sched, nil
}

// Get returns the schedule when it exists and belongs to the key.
func (s *ScheduleService) Get(ctx context.Context, apiKeyID, id string) (*models.Schedule, error) {
	sched, err := s.repos.Schedules.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load schedule: %w", err)
	}
	if apiKeyID != "" && sched.APIKeyID != apiKeyID {
		return nil, ErrNotFound
	}
	return sched, nil
}

// List returns the key's schedules, newest first.
func (s *ScheduleService) List(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.Schedule, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repos.Schedules.GetByAPIKeyID(ctx, apiKeyID, limit, offset)
}

// Update applies a partial update. Changing the cron expression recomputes
// the next firing from now.
func (s *ScheduleService) Update(ctx context.Context, apiKeyID, id string, update ScheduleUpdate) (*models.Schedule, error) {
	sched, err := s.Get(ctx, apiKeyID, id)
	if err != nil {
		return nil, err
	}

	if update.Cron != nil && *update.Cron != sched.Cron {
		if err := validation.ValidateCron(*update.Cron); err != nil {
			return nil, err
		}
		next, err := schedule.NextAfter(*update.Cron, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		sched.Cron = *update.Cron
		sched.NextRunAt = next
	}
	if update.Params != nil {
		if err := validation.ValidateExtract(update.Params); err != nil {
			return nil, err
		}
		paramsJSON, err := json.Marshal(update.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schedule params: %w", err)
		}
		sched.URL = update.Params.URL
		sched.ParamsJSON = string(paramsJSON)
	}
	if update.WebhookURL != nil {
		if *update.WebhookURL != "" {
			if err := validation.ValidateWebhook(*update.WebhookURL); err != nil {
				return nil, err
			}
		}
		sched.WebhookURL = *update.WebhookURL
	}
	if update.WebhookSecret != nil {
		storedSecret, err := s.encryptSecret(*update.WebhookSecret)
		if err != nil {
			return nil, err
		}
		sched.WebhookSecret = storedSecret
	}
	if update.IsActive != nil {
		sched.IsActive = *update.IsActive
	}

	if err := s.repos.Schedules.Update(ctx, sched); err != nil {
		return nil, fmt.Errorf("failed to update schedule: %w", err)
	}
	return sched, nil
}

// Delete removes the schedule. Jobs already created from it are untouched.
func (s *ScheduleService) Delete(ctx context.Context, apiKeyID, id string) error {
	if _, err := s.Get(ctx, apiKeyID, id); err != nil {
		return err
	}
	return s.repos.Schedules.Delete(ctx, id)
}

func (s *ScheduleService) encryptSecret(secret string) (string, error) {
	if secret == "" || s.encryptor == nil {
		return secret, nil
	}
	stored, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}
	return stored, nil
}
