package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/crypto"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/storage"
)

const (
	webhookUserAgent      = "robotscraping-webhook/1.0"
	webhookAttemptTimeout = 30 * time.Second

	headerSignature    = "x-robot-signature-256"
	headerEvent        = "x-robot-event"
	headerTimestamp    = "x-robot-timestamp"
	headerRetryAttempt = "x-robot-retry-attempt"
)

var defaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
}

// WebhookPayload is the JSON body delivered for job notifications.
type WebhookPayload struct {
	JobID      string         `json:"jobId"`
	Status     string         `json:"status"`
	ResultPath string         `json:"resultPath,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Meta       *ResultMeta    `json:"meta,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// WebhookService delivers signed job notifications. Each attempt gets its
// own timeout; a run of failed attempts ends in the dead letter table.
type WebhookService struct {
	repos         *repository.Repositories
	store         storage.Store
	encryptor     *crypto.Encryptor
	defaultSecret string
	client        *http.Client
	logger        *slog.Logger

	// backoff between attempts, shortened in tests
	backoff []time.Duration
}

// NewWebhookService creates a new webhook service. encryptor may be nil.
func NewWebhookService(repos *repository.Repositories, store storage.Store, encryptor *crypto.Encryptor, defaultSecret string, logger *slog.Logger) *WebhookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookService{
		repos:         repos,
		store:         store,
		encryptor:     encryptor,
		defaultSecret: defaultSecret,
		client:        &http.Client{Timeout: webhookAttemptTimeout},
		logger:        logger,
		backoff:       defaultBackoff,
	}
}

// NotifyJob sends the terminal-state notification for a job in the
// background. Jobs without a webhook URL are ignored.
func (s *WebhookService) NotifyJob(ctx context.Context, job *models.Job) {
	if job.WebhookURL == "" {
		return
	}

	payload := s.buildPayload(ctx, job)
	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to encode webhook payload", "job_id", job.ID, "error", err)
		return
	}

	secret := s.secretFor(job)
	event := "job." + string(job.Status)
	go func() {
		// Delivery outlives the request that triggered it.
		if err := s.deliver(context.Background(), job.ID, job.WebhookURL, secret, event, body); err != nil {
			s.logger.Error("webhook delivery abandoned", "job_id", job.ID, "url", job.WebhookURL, "error", err)
		}
	}()
}

// Test sends a sample payload synchronously with a single attempt, so
// clients can verify their endpoint and signature handling.
func (s *WebhookService) Test(ctx context.Context, url, secret string) error {
	if secret == "" {
		secret = s.defaultSecret
	}
	body, err := json.Marshal(WebhookPayload{
		JobID:  "test-" + uuid.NewString(),
		Status: "test",
	})
	if err != nil {
		return fmt.Errorf("failed to encode test payload: %w", err)
	}
	return s.attempt(ctx, url, secret, "webhook.test", body, 1)
}

func (s *WebhookService) buildPayload(ctx context.Context, job *models.Job) WebhookPayload {
	payload := WebhookPayload{
		JobID:  job.ID,
		Status: string(job.Status),
		Error:  apperr.Redact(job.ErrorMsg),
	}
	if job.Status != models.JobStatusCompleted || job.ResultPath == "" {
		return payload
	}

	payload.ResultPath = job.ResultPath
	blob, err := s.store.Get(ctx, job.ResultPath)
	if err != nil {
		s.logger.Warn("result blob unavailable for webhook", "job_id", job.ID, "error", err)
		return payload
	}
	var doc ResultDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		s.logger.Warn("result blob undecodable for webhook", "job_id", job.ID, "error", err)
		return payload
	}
	payload.Data = doc.Data
	payload.Meta = &doc.Meta
	return payload
}

func (s *WebhookService) secretFor(job *models.Job) string {
	if job.WebhookSecret == "" {
		return s.defaultSecret
	}
	if s.encryptor == nil {
		return job.WebhookSecret
	}
	secret, err := s.encryptor.Decrypt(job.WebhookSecret)
	if err != nil {
		s.logger.Warn("failed to decrypt webhook secret", "job_id", job.ID, "error", err)
		return s.defaultSecret
	}
	return secret
}

// deliver retries transient failures with exponential backoff. A 4xx
// response is treated as a misconfigured endpoint and stops the retries.
func (s *WebhookService) deliver(ctx context.Context, jobID, url, secret, event string, body []byte) error {
	var lastErr error
	attempts := 0

	for i := 0; i <= len(s.backoff); i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff[i-1]):
			}
		}

		attempts++
		err := s.attempt(ctx, url, secret, event, body, attempts)
		if err == nil {
			s.logger.Info("webhook delivered", "job_id", jobID, "url", url, "attempts", attempts)
			return nil
		}
		lastErr = err

		var terminal *webhookStatusError
		if errors.As(err, &terminal) && terminal.StatusCode >= 400 && terminal.StatusCode < 500 {
			s.logger.Warn("webhook rejected, not retrying", "job_id", jobID, "url", url, "status", terminal.StatusCode)
			break
		}
		s.logger.Warn("webhook attempt failed", "job_id", jobID, "url", url, "attempt", attempts, "error", err)
	}

	s.deadLetter(ctx, jobID, url, body, lastErr, attempts)
	return lastErr
}

func (s *WebhookService) attempt(ctx context.Context, url, secret, event string, body []byte, attempt int) error {
	ctx, cancel := context.WithTimeout(ctx, webhookAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerTimestamp, strconv.FormatInt(time.Now().UnixMilli(), 10))
	if attempt > 1 {
		req.Header.Set(headerRetryAttempt, strconv.Itoa(attempt))
	}
	if secret != "" {
		req.Header.Set(headerSignature, crypto.HMACSHA256Hex(secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	// Receivers behind redirects still count as delivered.
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}
	return &webhookStatusError{StatusCode: resp.StatusCode}
}

func (s *WebhookService) deadLetter(ctx context.Context, jobID, url string, body []byte, lastErr error, attempts int) {
	errMsg := "unknown error"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}
	dl := &models.WebhookDeadLetter{
		ID:        uuid.NewString(),
		JobID:     jobID,
		URL:       url,
		Payload:   string(body),
		LastError: errMsg,
		Attempts:  attempts,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repos.DeadLetters.Create(ctx, dl); err != nil {
		s.logger.Error("failed to record webhook dead letter", "job_id", jobID, "error", err)
	}
}

type webhookStatusError struct {
	StatusCode int
}

func (e *webhookStatusError) Error() string {
	return "webhook delivery failed with status " + strconv.Itoa(e.StatusCode)
}
