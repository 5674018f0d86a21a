package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteRateLimitRepository implements RateLimitRepository using SQLite.
// It backs the distributed limiter so multiple API instances sharing one
// database count against the same windows.
type SQLiteRateLimitRepository struct {
	db *sql.DB
}

// NewSQLiteRateLimitRepository creates a new rate limit repository.
func NewSQLiteRateLimitRepository(db *sql.DB) *SQLiteRateLimitRepository {
	return &SQLiteRateLimitRepository{db: db}
}

// Increment bumps the fixed-window counter for identifier in one statement.
// RFC3339 timestamps compare correctly as strings, so the window-expiry
// check can run inside the upsert.
func (r *SQLiteRateLimitRepository) Increment(ctx context.Context, identifier string, window time.Duration, now time.Time) (int, time.Time, error) {
	nowStr := now.UTC().Format(time.RFC3339)
	windowEnd := now.Add(window).UTC().Format(time.RFC3339)

	query := `
		INSERT INTO rate_limits (identifier, request_count, window_end, updated_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(identifier) DO UPDATE SET
			request_count = CASE WHEN rate_limits.window_end <= excluded.updated_at
				THEN 1 ELSE rate_limits.request_count + 1 END,
			window_end = CASE WHEN rate_limits.window_end <= excluded.updated_at
				THEN excluded.window_end ELSE rate_limits.window_end END,
			updated_at = excluded.updated_at
		RETURNING request_count, window_end
	`
	var count int
	var endStr string
	err := r.db.QueryRowContext(ctx, query, identifier, windowEnd, nowStr).Scan(&count, &endStr)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	end, _ := time.Parse(time.RFC3339, endStr)
	return count, end, nil
}

// CleanupExpired removes windows that have ended.
func (r *SQLiteRateLimitRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM rate_limits WHERE window_end <= ?",
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired rate limits: %w", err)
	}
	return result.RowsAffected()
}
