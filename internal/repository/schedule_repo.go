package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteScheduleRepository implements ScheduleRepository for SQLite.
type SQLiteScheduleRepository struct {
	db *sql.DB
}

// NewSQLiteScheduleRepository creates a new SQLite schedule repository.
func NewSQLiteScheduleRepository(db *sql.DB) *SQLiteScheduleRepository {
	return &SQLiteScheduleRepository{db: db}
}

const scheduleColumns = `id, api_key_id, cron, url, params_json, webhook_url,
	webhook_secret_encrypted, is_active, next_run_at, last_run_at, created_at, updated_at`

func (r *SQLiteScheduleRepository) Create(ctx context.Context, s *models.Schedule) error {
	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	isActive := 0
	if s.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		s.ID,
		nullString(s.APIKeyID),
		s.Cron,
		s.URL,
		s.ParamsJSON,
		nullString(s.WebhookURL),
		nullString(s.WebhookSecret),
		isActive,
		s.NextRunAt.UTC().Format(time.RFC3339),
		nullTime(s.LastRunAt),
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	return nil
}

func (r *SQLiteScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	return r.scanSchedule(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteScheduleRepository) GetByAPIKeyID(ctx context.Context, apiKeyID string, limit, offset int) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE api_key_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, apiKeyID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := r.scanScheduleFromRows(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

func (r *SQLiteScheduleRepository) Update(ctx context.Context, s *models.Schedule) error {
	isActive := 0
	if s.IsActive {
		isActive = 1
	}
	query := `
		UPDATE schedules SET cron = ?, url = ?, params_json = ?, webhook_url = ?,
			webhook_secret_encrypted = ?, is_active = ?, next_run_at = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		s.Cron, s.URL, s.ParamsJSON,
		nullString(s.WebhookURL), nullString(s.WebhookSecret),
		isActive,
		s.NextRunAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update schedule: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("schedule %s not found", s.ID)
	}
	return nil
}

func (r *SQLiteScheduleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM schedules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("schedule %s not found", id)
	}
	return nil
}

func (r *SQLiteScheduleRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error) {
	query := `
		SELECT ` + scheduleColumns + ` FROM schedules
		WHERE is_active = 1 AND next_run_at <= ?
		ORDER BY next_run_at ASC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, now.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.Schedule
	for rows.Next() {
		s, err := r.scanScheduleFromRows(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, s)
	}
	return schedules, rows.Err()
}

// AdvanceNextRun uses a compare-and-swap on next_run_at so that when two
// scheduler instances see the same due schedule, exactly one fires it.
func (r *SQLiteScheduleRepository) AdvanceNextRun(ctx context.Context, id string, from, next, ranAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET next_run_at = ?, last_run_at = ?, updated_at = ?
		WHERE id = ? AND next_run_at = ?
	`,
		next.UTC().Format(time.RFC3339),
		ranAt.UTC().Format(time.RFC3339),
		time.Now().UTC().Format(time.RFC3339),
		id,
		from.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, fmt.Errorf("failed to advance schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return affected > 0, nil
}

func (r *SQLiteScheduleRepository) scanSchedule(row *sql.Row) (*models.Schedule, error) {
	var s models.Schedule
	var apiKeyID, webhookURL, webhookSecret, lastRunAt sql.NullString
	var isActive int
	var nextRunAt, createdAt, updatedAt string

	err := row.Scan(
		&s.ID, &apiKeyID, &s.Cron, &s.URL, &s.ParamsJSON,
		&webhookURL, &webhookSecret, &isActive, &nextRunAt, &lastRunAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	fillSchedule(&s, apiKeyID, webhookURL, webhookSecret, lastRunAt, isActive, nextRunAt, createdAt, updatedAt)
	return &s, nil
}

func (r *SQLiteScheduleRepository) scanScheduleFromRows(rows *sql.Rows) (*models.Schedule, error) {
	var s models.Schedule
	var apiKeyID, webhookURL, webhookSecret, lastRunAt sql.NullString
	var isActive int
	var nextRunAt, createdAt, updatedAt string

	err := rows.Scan(
		&s.ID, &apiKeyID, &s.Cron, &s.URL, &s.ParamsJSON,
		&webhookURL, &webhookSecret, &isActive, &nextRunAt, &lastRunAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan schedule: %w", err)
	}

	fillSchedule(&s, apiKeyID, webhookURL, webhookSecret, lastRunAt, isActive, nextRunAt, createdAt, updatedAt)
	return &s, nil
}

func fillSchedule(s *models.Schedule,
	apiKeyID, webhookURL, webhookSecret, lastRunAt sql.NullString,
	isActive int, nextRunAt, createdAt, updatedAt string,
) {
	s.APIKeyID = apiKeyID.String
	s.WebhookURL = webhookURL.String
	s.WebhookSecret = webhookSecret.String
	s.IsActive = isActive == 1
	s.NextRunAt, _ = time.Parse(time.RFC3339, nextRunAt)
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	if lastRunAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastRunAt.String)
		s.LastRunAt = &t
	}
}
