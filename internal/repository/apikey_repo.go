package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteAPIKeyRepository implements APIKeyRepository for SQLite.
type SQLiteAPIKeyRepository struct {
	db *sql.DB
}

// NewSQLiteAPIKeyRepository creates a new SQLite API key repository.
func NewSQLiteAPIKeyRepository(db *sql.DB) *SQLiteAPIKeyRepository {
	return &SQLiteAPIKeyRepository{db: db}
}

func (r *SQLiteAPIKeyRepository) Create(ctx context.Context, key *models.APIKey) error {
	query := `
		INSERT INTO api_keys (id, owner, key_hash, key_prefix, tier, remaining_credits, is_active, last_used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	isActive := 0
	if key.IsActive {
		isActive = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		key.ID, key.Owner, key.KeyHash, key.KeyPrefix, key.Tier,
		key.RemainingCredits, isActive, nullTime(key.LastUsedAt),
		key.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *SQLiteAPIKeyRepository) GetByID(ctx context.Context, id string) (*models.APIKey, error) {
	query := `
		SELECT id, owner, key_hash, key_prefix, tier, remaining_credits, is_active, last_used_at, created_at
		FROM api_keys WHERE id = ?
	`
	return r.scanAPIKey(r.db.QueryRowContext(ctx, query, id))
}

func (r *SQLiteAPIKeyRepository) GetByKeyHash(ctx context.Context, hash string) (*models.APIKey, error) {
	query := `
		SELECT id, owner, key_hash, key_prefix, tier, remaining_credits, is_active, last_used_at, created_at
		FROM api_keys WHERE key_hash = ?
	`
	return r.scanAPIKey(r.db.QueryRowContext(ctx, query, hash))
}

// Consume performs a conditional decrement in a single statement so two
// concurrent requests can never spend the same credit twice.
func (r *SQLiteAPIKeyRepository) Consume(ctx context.Context, id string, amount int) (int, error) {
	query := `
		UPDATE api_keys
		SET remaining_credits = remaining_credits - ?, last_used_at = ?
		WHERE id = ? AND is_active = 1 AND remaining_credits >= ?
		RETURNING remaining_credits
	`
	var remaining int
	err := r.db.QueryRowContext(ctx, query,
		amount, time.Now().UTC().Format(time.RFC3339), id, amount,
	).Scan(&remaining)
	if err == sql.ErrNoRows {
		return 0, r.classifyConsumeMiss(ctx, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to consume credits: %w", err)
	}
	return remaining, nil
}

// classifyConsumeMiss re-reads the key to explain why the conditional
// decrement matched no row.
func (r *SQLiteAPIKeyRepository) classifyConsumeMiss(ctx context.Context, id string) error {
	var isActive int
	err := r.db.QueryRowContext(ctx,
		"SELECT is_active FROM api_keys WHERE id = ?", id,
	).Scan(&isActive)
	if err == sql.ErrNoRows {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to classify consume failure: %w", err)
	}
	if isActive == 0 {
		return ErrKeyInactive
	}
	return ErrInsufficientCredits
}

func (r *SQLiteAPIKeyRepository) AddCredits(ctx context.Context, id string, amount int) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET remaining_credits = remaining_credits + ? WHERE id = ?",
		amount, id,
	)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("api key %s not found", id)
	}
	return nil
}

func (r *SQLiteAPIKeyRepository) UpdateLastUsed(ctx context.Context, id string, lastUsed time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE api_keys SET last_used_at = ? WHERE id = ?",
		lastUsed.Format(time.RFC3339), id,
	)
	return err
}

func (r *SQLiteAPIKeyRepository) scanAPIKey(row *sql.Row) (*models.APIKey, error) {
	var key models.APIKey
	var isActive int
	var lastUsedAt sql.NullString
	var createdAt string

	err := row.Scan(
		&key.ID, &key.Owner, &key.KeyHash, &key.KeyPrefix, &key.Tier,
		&key.RemainingCredits, &isActive, &lastUsedAt, &createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan api key: %w", err)
	}

	key.IsActive = isActive == 1
	key.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if lastUsedAt.Valid {
		t, _ := time.Parse(time.RFC3339, lastUsedAt.String)
		key.LastUsedAt = &t
	}
	return &key, nil
}
