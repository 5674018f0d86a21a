package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteDeadLetterRepository implements DeadLetterRepository for SQLite.
type SQLiteDeadLetterRepository struct {
	db *sql.DB
}

// NewSQLiteDeadLetterRepository creates a new SQLite dead letter repository.
func NewSQLiteDeadLetterRepository(db *sql.DB) *SQLiteDeadLetterRepository {
	return &SQLiteDeadLetterRepository{db: db}
}

func (r *SQLiteDeadLetterRepository) Create(ctx context.Context, dl *models.WebhookDeadLetter) error {
	query := `
		INSERT INTO webhook_dead_letters (id, job_id, url, payload, last_error, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		dl.ID, dl.JobID, dl.URL, dl.Payload, dl.LastError, dl.Attempts,
		dl.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create dead letter: %w", err)
	}
	return nil
}

func (r *SQLiteDeadLetterRepository) ListRecent(ctx context.Context, limit int) ([]*models.WebhookDeadLetter, error) {
	query := `
		SELECT id, job_id, url, payload, last_error, attempts, created_at
		FROM webhook_dead_letters ORDER BY created_at DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*models.WebhookDeadLetter
	for rows.Next() {
		var dl models.WebhookDeadLetter
		var createdAt string
		if err := rows.Scan(&dl.ID, &dl.JobID, &dl.URL, &dl.Payload, &dl.LastError, &dl.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		dl.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		letters = append(letters, &dl)
	}
	return letters, rows.Err()
}
