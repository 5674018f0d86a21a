package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteCacheRepository implements CacheRepository for SQLite.
type SQLiteCacheRepository struct {
	db *sql.DB
}

// NewSQLiteCacheRepository creates a new SQLite cache repository.
func NewSQLiteCacheRepository(db *sql.DB) *SQLiteCacheRepository {
	return &SQLiteCacheRepository{db: db}
}

func (r *SQLiteCacheRepository) Get(ctx context.Context, fingerprint string, now time.Time) (*models.CacheEntry, error) {
	query := `
		SELECT fingerprint, result_path, token_usage, content_chars, hit_count, last_hit_at, created_at, expires_at
		FROM cache_entries WHERE fingerprint = ? AND expires_at > ?
	`
	var entry models.CacheEntry
	var lastHitAt sql.NullString
	var createdAt, expiresAt string

	err := r.db.QueryRowContext(ctx, query, fingerprint, now.UTC().Format(time.RFC3339)).Scan(
		&entry.Fingerprint, &entry.ResultPath, &entry.TokenUsage, &entry.ContentChars,
		&entry.HitCount, &lastHitAt, &createdAt, &expiresAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry: %w", err)
	}

	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt)
	if lastHitAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastHitAt.String)
		entry.LastHitAt = &t
	}
	return &entry, nil
}

// Put inserts or replaces the entry for a fingerprint. The hit count of an
// existing row is kept so replacement does not reset popularity.
func (r *SQLiteCacheRepository) Put(ctx context.Context, entry *models.CacheEntry) error {
	query := `
		INSERT INTO cache_entries (fingerprint, result_path, token_usage, content_chars, hit_count, last_hit_at, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			result_path = excluded.result_path,
			token_usage = excluded.token_usage,
			content_chars = excluded.content_chars,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	_, err := r.db.ExecContext(ctx, query,
		entry.Fingerprint, entry.ResultPath, entry.TokenUsage, entry.ContentChars,
		entry.HitCount, nullTime(entry.LastHitAt),
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.ExpiresAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to store cache entry: %w", err)
	}
	return nil
}

func (r *SQLiteCacheRepository) RecordHit(ctx context.Context, fingerprint string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE cache_entries SET hit_count = hit_count + 1, last_hit_at = ?
		WHERE fingerprint = ?
	`, now.UTC().Format(time.RFC3339), fingerprint)
	if err != nil {
		return fmt.Errorf("failed to record cache hit: %w", err)
	}
	return nil
}

func (r *SQLiteCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at <= ?",
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}
