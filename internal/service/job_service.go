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

	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/queue"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/storage"
	"github.com/7and1/robotscraping/internal/validation"
)

// JobService manages asynchronous extraction jobs.
type JobService struct {
	cfg       *config.Config
	repos     *repository.Repositories
	store     storage.Store
	queue     queue.Queue
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

// NewJobService creates a new job service. encryptor may be nil, in which
// case webhook secrets are stored verbatim.
func NewJobService(cfg *config.Config, repos *repository.Repositories, store storage.Store, q queue.Queue, encryptor *crypto.Encryptor, logger *slog.Logger) *JobService {
	return &JobService{
		cfg:       cfg,
		repos:     repos,
		store:     store,
		queue:     q,
		encryptor: encryptor,
		logger:    logger,
	}
}

// Create validates, charges, persists, and enqueues one job.
func (s *JobService) Create(ctx context.Context, apiKeyID string, params *models.ExtractParams, webhookURL, webhookSecret string) (*models.Job, error) {
	if err := validation.ValidateExtract(params); err != nil {
		return nil, err
	}
	if webhookURL != "" {
		if err := validation.ValidateWebhook(webhookURL); err != nil {
			return nil, err
		}
	}

	if apiKeyID != "" {
		if _, err := s.repos.APIKeys.Consume(ctx, apiKeyID, 1); err != nil {
			return nil, err
		}
	}

	job, err := s.insertAndEnqueue(ctx, apiKeyID, "", params, webhookURL, webhookSecret)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// CreateBatch charges for the whole batch up front, then creates one job per
// entry. Batch size limits are enforced by the transport layer.
func (s *JobService) CreateBatch(ctx context.Context, apiKeyID string, items []*models.ExtractParams, webhookURL, webhookSecret string) ([]*models.Job, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("batch must contain at least one request")
	}
	for i, params := range items {
		if err := validation.ValidateExtract(params); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	if webhookURL != "" {
		if err := validation.ValidateWebhook(webhookURL); err != nil {
			return nil, err
		}
	}

	if apiKeyID != "" {
		if _, err := s.repos.APIKeys.Consume(ctx, apiKeyID, len(items)); err != nil {
			return nil, err
		}
	}

	jobs := make([]*models.Job, 0, len(items))
	for _, params := range items {
		job, err := s.insertAndEnqueue(ctx, apiKeyID, "", params, webhookURL, webhookSecret)
		if err != nil {
			return jobs, err
		}
		jobs = append(jobs, job)
	}

	s.recordBatchEvent(ctx, apiKeyID, jobs)
	return jobs, nil
}

// Get returns the job when it exists and belongs to the key. A job owned by
// a different key looks identical to a missing one.
func (s *JobService) Get(ctx context.Context, apiKeyID, id string) (*models.Job, error) {
	job, err := s.repos.Jobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if apiKeyID != "" && job.APIKeyID != apiKeyID {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns the key's jobs, newest first.
func (s *JobService) List(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.Job, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repos.Jobs.GetByAPIKeyID(ctx, apiKeyID, limit, offset)
}

// Result returns the stored result document for a terminal job. ErrNotReady
// is returned while the job is still queued or processing; failed and
// blocked jobs return the job with no document.
func (s *JobService) Result(ctx context.Context, apiKeyID, id string) (*models.Job, []byte, error) {
	job, err := s.Get(ctx, apiKeyID, id)
	if err != nil {
		return nil, nil, err
	}
	if !job.Status.Terminal() {
		return job, nil, ErrNotReady
	}
	if job.Status != models.JobStatusCompleted || job.ResultPath == "" {
		return job, nil, nil
	}

	blob, err := s.store.Get(ctx, job.ResultPath)
	if err != nil {
		return job, nil, fmt.Errorf("failed to load result: %w", err)
	}
	return job, blob, nil
}

func (s *JobService) insertAndEnqueue(ctx context.Context, apiKeyID, scheduleID string, params *models.ExtractParams, webhookURL, webhookSecret string) (*models.Job, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job params: %w", err)
	}

	storedSecret := webhookSecret
	if storedSecret != "" && s.encryptor != nil {
		storedSecret, err = s.encryptor.Encrypt(storedSecret)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt webhook secret: %w", err)
		}
	}

	job := &models.Job{
		ID:            uuid.NewString(),
		APIKeyID:      apiKeyID,
		ScheduleID:    scheduleID,
		Status:        models.JobStatusQueued,
		URL:           params.URL,
		ParamsJSON:    string(paramsJSON),
		WebhookURL:    webhookURL,
		WebhookSecret: storedSecret,
	}
	if err := s.repos.Jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to store job: %w", err)
	}

	if err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID}); err != nil {
		s.logger.Error("failed to enqueue job", "job_id", job.ID, "error", err)
		if markErr := s.repos.Jobs.MarkFailed(ctx, job.ID, "queue unavailable", false); markErr != nil {
			s.logger.Error("failed to mark unenqueued job failed", "job_id", job.ID, "error", markErr)
		}
		return nil, ErrQueueUnavailable
	}

	return job, nil
}

func (s *JobService) recordBatchEvent(ctx context.Context, apiKeyID string, jobs []*models.Job) {
	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
	}
	meta, _ := json.Marshal(map[string]any{"count": len(ids), "job_ids": ids})
	row := &models.EventLog{
		ID:        uuid.NewString(),
		APIKeyID:  apiKeyID,
		Event:     models.EventBatchCreated,
		MetaJSON:  string(meta),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.Logs.CreateEvent(ctx, row); err != nil {
		s.logger.Warn("failed to write batch event", "error", err)
	}
}
