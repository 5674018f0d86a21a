package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteIdempotencyRepository implements IdempotencyRepository for SQLite.
type SQLiteIdempotencyRepository struct {
	db *sql.DB
}

// NewSQLiteIdempotencyRepository creates a new SQLite idempotency repository.
func NewSQLiteIdempotencyRepository(db *sql.DB) *SQLiteIdempotencyRepository {
	return &SQLiteIdempotencyRepository{db: db}
}

func (r *SQLiteIdempotencyRepository) Get(ctx context.Context, key string, now time.Time) (*models.IdempotencyEntry, error) {
	query := `
		SELECT key, body_hash, status_code, response, created_at, expires_at
		FROM idempotency_entries WHERE key = ? AND expires_at > ?
	`
	var entry models.IdempotencyEntry
	var createdAt, expiresAt string

	err := r.db.QueryRowContext(ctx, query, key, now.UTC().Format(time.RFC3339)).Scan(
		&entry.Key, &entry.BodyHash, &entry.StatusCode, &entry.Response, &createdAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get idempotency entry: %w", err)
	}

	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	return &entry, nil
}

func (r *SQLiteIdempotencyRepository) Put(ctx context.Context, entry *models.IdempotencyEntry) error {
	query := `
		INSERT INTO idempotency_entries (key, body_hash, status_code, response, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			body_hash = excluded.body_hash,
			status_code = excluded.status_code,
			response = excluded.response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.Key, entry.BodyHash, entry.StatusCode, entry.Response,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store idempotency entry: %w", err)
	}
	return nil
}

func (r *SQLiteIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM idempotency_entries WHERE expires_at <= ?",
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired idempotency entries: %w", err)
	}
	return result.RowsAffected()
}
