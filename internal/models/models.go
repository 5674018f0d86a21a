// Package models defines the domain models for the application.
package models

import (
	"time"
)

// APIKey represents an API key for programmatic access. Keys are looked up
// by the SHA-256 hash of the presented key string; the plaintext is never
// stored.
type APIKey struct {
	ID               string     `json:"id"`
	Owner            string     `json:"owner"`
	KeyHash          string     `json:"-"`
	KeyPrefix        string     `json:"key_prefix"` // First 8 chars for display
	Tier             string     `json:"tier"`
	RemainingCredits int        `json:"remaining_credits"`
	IsActive         bool       `json:"is_active"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ExtractOptions tune how a page is rendered and what artifacts are kept.
type ExtractOptions struct {
	Screenshot   bool   `json:"screenshot,omitempty"`
	StoreContent bool   `json:"storeContent,omitempty"`
	WaitUntil    string `json:"waitUntil,omitempty"`
	TimeoutMs    int    `json:"timeoutMs,omitempty"`
}

// ExtractParams is the extraction request shared by the sync endpoint, jobs
// and schedules. Exactly one of Fields or Schema drives the extraction shape.
type ExtractParams struct {
	URL          string          `json:"url"`
	Fields       []string        `json:"fields,omitempty"`
	Schema       map[string]any  `json:"schema,omitempty"`
	Instructions string          `json:"instructions,omitempty"`
	Options      *ExtractOptions `json:"options,omitempty"`
}

// JobStatus represents the status of a job.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusBlocked    JobStatus = "blocked"
)

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusBlocked
}

// Job represents one asynchronous extraction.
type Job struct {
	ID            string     `json:"id"`
	APIKeyID      string     `json:"api_key_id,omitempty"` // empty in anonymous mode
	ScheduleID    string     `json:"schedule_id,omitempty"`
	Status        JobStatus  `json:"status"`
	URL           string     `json:"url"`
	ParamsJSON    string     `json:"params_json"` // fields, schema, instructions, options
	WebhookURL    string     `json:"webhook_url,omitempty"`
	WebhookSecret string     `json:"-"` // encrypted at rest
	ResultPath    string     `json:"result_path,omitempty"`
	TokenUsage    int        `json:"token_usage"`
	LatencyMs     int        `json:"latency_ms"`
	Blocked       bool       `json:"blocked"`
	ErrorMsg      string     `json:"error_msg,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Schedule represents a recurring extraction materialised into jobs by the
// scheduler tick.
type Schedule struct {
	ID            string     `json:"id"`
	APIKeyID      string     `json:"api_key_id,omitempty"`
	Cron          string     `json:"cron"`
	URL           string     `json:"url"`
	ParamsJSON    string     `json:"params_json"`
	WebhookURL    string     `json:"webhook_url,omitempty"`
	WebhookSecret string     `json:"-"` // encrypted at rest
	IsActive      bool       `json:"is_active"`
	NextRunAt     time.Time  `json:"next_run_at"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CacheEntry records one cached extraction result, keyed by the canonical
// request fingerprint. The result body lives in the blob store.
type CacheEntry struct {
	Fingerprint  string     `json:"fingerprint"`
	ResultPath   string     `json:"result_path"`
	TokenUsage   int        `json:"token_usage"`
	ContentChars int        `json:"content_chars"`
	HitCount     int        `json:"hit_count"`
	LastHitAt    *time.Time `json:"last_hit_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
}

// IdempotencyEntry stores a previously returned response for replay.
type IdempotencyEntry struct {
	Key        string    `json:"key"`
	BodyHash   string    `json:"body_hash"`
	StatusCode int       `json:"status_code"`
	Response   string    `json:"response"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ScrapeLog is the append-only record of one extraction attempt.
type ScrapeLog struct {
	ID             string    `json:"id"`
	APIKeyID       string    `json:"api_key_id,omitempty"`
	URL            string    `json:"url"`
	FieldsJSON     string    `json:"fields_json,omitempty"`
	SchemaJSON     string    `json:"schema_json,omitempty"`
	TokenUsage     int       `json:"token_usage"`
	LatencyMs      int       `json:"latency_ms"`
	Status         string    `json:"status"` // success, failed, blocked
	ErrorMsg       string    `json:"error_msg,omitempty"`
	ContentPath    string    `json:"content_path,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	Blocked        bool      `json:"blocked"`
	CreatedAt      time.Time `json:"created_at"`
}

// Event types recorded in event_logs.
const (
	EventCacheHit       = "cache_hit"
	EventCacheMiss      = "cache_miss"
	EventCacheStore     = "cache_store"
	EventProxyFallback  = "proxy_grid_fallback"
	EventBatchCreated   = "batch_created"
	EventIdempotencyHit = "idempotency_hit"
)

// EventLog is an append-only semantic event.
type EventLog struct {
	ID        string    `json:"id"`
	APIKeyID  string    `json:"api_key_id,omitempty"`
	Event     string    `json:"event"`
	MetaJSON  string    `json:"meta_json,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// WebhookDeadLetter is the terminal failure record for a webhook that
// exhausted its retries.
type WebhookDeadLetter struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	Payload   string    `json:"payload"`
	LastError string    `json:"last_error"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}

// RateLimitEntry is one fixed window for a client identifier, used by the
// tabular-store limiter.
type RateLimitEntry struct {
	Identifier   string    `json:"identifier"`
	RequestCount int       `json:"request_count"`
	WindowEnd    time.Time `json:"window_end"`
	UpdatedAt    time.Time `json:"updated_at"`
}
