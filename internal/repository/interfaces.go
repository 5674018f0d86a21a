// Package repository provides data access interfaces and implementations.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// ErrInsufficientCredits is returned by Consume when the key's balance does
// not cover the requested amount.
var ErrInsufficientCredits = errors.New("insufficient credits")

// ErrKeyNotFound is returned by Consume for an unknown key id.
var ErrKeyNotFound = errors.New("api key not found")

// ErrKeyInactive is returned by Consume for a revoked or disabled key.
var ErrKeyInactive = errors.New("api key inactive")

// APIKeyRepository handles API key persistence.
type APIKeyRepository interface {
	Create(ctx context.Context, key *models.APIKey) error
	GetByID(ctx context.Context, id string) (*models.APIKey, error)
	GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error)
	// Consume decrements the key's balance by amount if and only if the key
	// is active and the balance covers it. Returns the remaining balance.
	Consume(ctx context.Context, id string, amount int) (int, error)
	AddCredits(ctx context.Context, id string, amount int) error
	UpdateLastUsed(ctx context.Context, id string, lastUsed time.Time) error
}

// JobRepository handles job persistence.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	GetByAPIKeyID(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.Job, error)
	// MarkProcessing flips a queued job to processing. Returns false when the
	// job was not in the queued state, which means another worker claimed it.
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id, resultPath string, tokenUsage, latencyMs int) error
	MarkFailed(ctx context.Context, id, errorMsg string, blocked bool) error
	// MarkStaleProcessingFailed fails jobs stuck in processing longer than
	// maxAge, typically after a server restart.
	MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// ScheduleRepository handles schedule persistence.
type ScheduleRepository interface {
	Create(ctx context.Context, s *models.Schedule) error
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	GetByAPIKeyID(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.Schedule, error)
	Update(ctx context.Context, s *models.Schedule) error
	Delete(ctx context.Context, id string) error
	// ListDue returns active schedules with next_run_at at or before now.
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error)
	// AdvanceNextRun moves next_run_at from its expected current value to
	// next. Returns false when another scheduler instance advanced it first.
	AdvanceNextRun(ctx context.Context, id string, from, next, ranAt time.Time) (bool, error)
}

// CacheRepository handles cached extraction results.
type CacheRepository interface {
	// Get returns the entry for fingerprint if it has not expired at now.
	Get(ctx context.Context, fingerprint string, now time.Time) (*models.CacheEntry, error)
	// Put inserts or replaces the entry. An existing entry's hit count
	// survives replacement.
	Put(ctx context.Context, entry *models.CacheEntry) error
	RecordHit(ctx context.Context, fingerprint string, now time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// IdempotencyRepository stores responses for request replay.
type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*models.IdempotencyEntry, error)
	Put(ctx context.Context, entry *models.IdempotencyEntry) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DailyUsage is one day in a usage series.
type DailyUsage struct {
	Date       string `json:"date"` // YYYY-MM-DD
	Requests   int    `json:"requests"`
	TokenUsage int    `json:"token_usage"`
	Blocked    int    `json:"blocked"`
	Failed     int    `json:"failed"`
}

// UsageSummary aggregates an API key's extraction history.
type UsageSummary struct {
	TotalRequests int     `json:"total_requests"`
	TotalTokens   int     `json:"total_tokens"`
	TotalBlocked  int     `json:"total_blocked"`
	TotalFailed   int     `json:"total_failed"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	CacheHits     int     `json:"cache_hits"`
}

// LogRepository handles the append-only scrape and event logs.
type LogRepository interface {
	CreateScrape(ctx context.Context, log *models.ScrapeLog) error
	CreateEvent(ctx context.Context, event *models.EventLog) error
	ListRecent(ctx context.Context, apiKeyID string, limit int) ([]*models.ScrapeLog, error)
	ListRange(ctx context.Context, apiKeyID string, from, to time.Time) ([]*models.ScrapeLog, error)
	Summary(ctx context.Context, apiKeyID string) (*UsageSummary, error)
	DailySeries(ctx context.Context, apiKeyID string, days int) ([]DailyUsage, error)
	CountEvents(ctx context.Context, apiKeyID, event string) (int, error)
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// DeadLetterRepository stores webhook deliveries that exhausted retries.
type DeadLetterRepository interface {
	Create(ctx context.Context, dl *models.WebhookDeadLetter) error
	ListRecent(ctx context.Context, limit int) ([]*models.WebhookDeadLetter, error)
}

// RateLimitRepository provides fixed-window counters shared across instances.
type RateLimitRepository interface {
	// Increment bumps the counter for identifier, starting a fresh window of
	// the given length when the previous one has ended. Returns the count
	// within the current window and the window end.
	Increment(ctx context.Context, identifier string, window time.Duration, now time.Time) (int, time.Time, error)
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

// Repositories aggregates all repository implementations.
type Repositories struct {
	APIKeys     APIKeyRepository
	Jobs        JobRepository
	Schedules   ScheduleRepository
	Cache       CacheRepository
	Idempotency IdempotencyRepository
	Logs        LogRepository
	DeadLetters DeadLetterRepository
	RateLimits  RateLimitRepository
}

// NewRepositories creates all SQLite-backed repositories.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		APIKeys:     NewSQLiteAPIKeyRepository(db),
		Jobs:        NewSQLiteJobRepository(db),
		Schedules:   NewSQLiteScheduleRepository(db),
		Cache:       NewSQLiteCacheRepository(db),
		Idempotency: NewSQLiteIdempotencyRepository(db),
		Logs:        NewSQLiteLogRepository(db),
		DeadLetters: NewSQLiteDeadLetterRepository(db),
		RateLimits:  NewSQLiteRateLimitRepository(db),
	}
}
