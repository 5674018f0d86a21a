package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteJobRepository implements JobRepository for SQLite.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository creates a new SQLite job repository.
func NewSQLiteJobRepository(db *sql.DB) *SQLiteJobRepository {
	return &SQLiteJobRepository{db: db}
}

const jobColumns = `id, api_key_id, schedule_id, status, url, params_json, webhook_url,
	webhook_secret_encrypted, result_path, token_usage, latency_ms, blocked, error_msg,
	started_at, completed_at, created_at, updated_at`

func (r *SQLiteJobRepository) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	blocked := 0
	if job.Blocked {
		blocked = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		job.ID,
		nullString(job.APIKeyID),
		nullString(job.ScheduleID),
		job.Status,
		job.URL,
		job.ParamsJSON,
		nullString(job.WebhookURL),
		nullString(job.WebhookSecret),
		nullString(job.ResultPath),
		job.TokenUsage,
		job.LatencyMs,
		blocked,
		nullString(job.ErrorMsg),
		nullTime(job.StartedAt),
		nullTime(job.CompletedAt),
		job.CreatedAt.Format(time.RFC3339),
		job.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) GetByID(ctx context.Context, id string) (*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	return r.scanJob(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteJobRepository) GetByAPIKeyID(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE api_key_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, apiKeyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := r.scanJobFromRows(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// MarkProcessing claims a queued job. The status guard makes the claim
// atomic across workers.
func (r *SQLiteJobRepository) MarkProcessing(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, started_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.JobStatusProcessing, now, now, id, models.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

// MarkCompleted flips a processing job to completed. The result blob must be
// written before calling this so a completed job always has a readable result.
func (r *SQLiteJobRepository) MarkCompleted(ctx context.Context, id, resultPath string, tokenUsage, latencyMs int) error {
	now := time.Now().UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, result_path = ?, token_usage = ?, latency_ms = ?,
			completed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, models.JobStatusCompleted, resultPath, tokenUsage, latencyMs, now, now, id, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("job %s not in processing state", id)
	}
	return nil
}

func (r *SQLiteJobRepository) MarkFailed(ctx context.Context, id, errorMsg string, blocked bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	status := models.JobStatusFailed
	blockedInt := 0
	if blocked {
		status = models.JobStatusBlocked
		blockedInt = 1
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error_msg = ?, blocked = ?, completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`, status, errorMsg, blockedInt, now, now, id, models.JobStatusQueued, models.JobStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}
	return nil
}

func (r *SQLiteJobRepository) MarkStaleProcessingFailed(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error_msg = ?, completed_at = ?, updated_at = ?
		WHERE status = ? AND started_at < ?
	`, models.JobStatusFailed, "job terminated: server restart or timeout", now, now,
		models.JobStatusProcessing, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to mark stale jobs as failed: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLiteJobRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE created_at < ? AND status IN (?, ?, ?)
	`, before.UTC().Format(time.RFC3339),
		models.JobStatusCompleted, models.JobStatusFailed, models.JobStatusBlocked)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old jobs: %w", err)
	}
	count, _ := result.RowsAffected()
	return count, nil
}

func (r *SQLiteJobRepository) scanJob(row *sql.Row) (*models.Job, error) {
	var job models.Job
	var apiKeyID, scheduleID, webhookURL, webhookSecret, resultPath, errorMsg sql.NullString
	var startedAt, completedAt sql.NullString
	var blocked int
	var createdAt, updatedAt string

	err := row.Scan(
		&job.ID, &apiKeyID, &scheduleID, &job.Status, &job.URL, &job.ParamsJSON,
		&webhookURL, &webhookSecret, &resultPath, &job.TokenUsage, &job.LatencyMs,
		&blocked, &errorMsg, &startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	fillJob(&job, apiKeyID, scheduleID, webhookURL, webhookSecret, resultPath, errorMsg,
		startedAt, completedAt, blocked, createdAt, updatedAt)
	return &job, nil
}

func (r *SQLiteJobRepository) scanJobFromRows(rows *sql.Rows) (*models.Job, error) {
	var job models.Job
	var apiKeyID, scheduleID, webhookURL, webhookSecret, resultPath, errorMsg sql.NullString
	var startedAt, completedAt sql.NullString
	var blocked int
	var createdAt, updatedAt string

	err := rows.Scan(
		&job.ID, &apiKeyID, &scheduleID, &job.Status, &job.URL, &job.ParamsJSON,
		&webhookURL, &webhookSecret, &resultPath, &job.TokenUsage, &job.LatencyMs,
		&blocked, &errorMsg, &startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	fillJob(&job, apiKeyID, scheduleID, webhookURL, webhookSecret, resultPath, errorMsg,
		startedAt, completedAt, blocked, createdAt, updatedAt)
	return &job, nil
}

func fillJob(job *models.Job,
	apiKeyID, scheduleID, webhookURL, webhookSecret, resultPath, errorMsg sql.NullString,
	startedAt, completedAt sql.NullString, blocked int, createdAt, updatedAt string,
) {
	job.APIKeyID = apiKeyID.String
	job.ScheduleID = scheduleID.String
	job.WebhookURL = webhookURL.String
	job.WebhookSecret = webhookSecret.String
	job.ResultPath = resultPath.String
	job.ErrorMsg = errorMsg.String
	job.Blocked = blocked == 1
	job.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	job.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if startedAt.Valid {
		t, _ := time.Parse(time.RFC3339, startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t, _ := time.Parse(time.RFC3339, completedAt.String)
		job.CompletedAt = &t
	}
}

// Helper functions shared by the SQLite repositories.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}
