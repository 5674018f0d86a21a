package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
)

func TestAPIKeyRepository_Consume(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestAPIKey(t, repos, "key_1", 3)

	remaining, err := repos.APIKeys.Consume(ctx, "key_1", 1)
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if remaining != 2 {
		t.Errorf("remaining = %d, want 2", remaining)
	}

	// Drain the balance
	if _, err := repos.APIKeys.Consume(ctx, "key_1", 2); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	// Next consume must fail without going negative
	_, err = repos.APIKeys.Consume(ctx, "key_1", 1)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Errorf("Consume() error = %v, want ErrInsufficientCredits", err)
	}

	key, err := repos.APIKeys.GetByID(ctx, "key_1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if key.RemainingCredits != 0 {
		t.Errorf("RemainingCredits = %d, want 0", key.RemainingCredits)
	}
}

func TestAPIKeyRepository_ConsumeInactiveKey(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestAPIKey(t, repos, "key_2", 10)
	if _, err := repos.APIKeys.(*SQLiteAPIKeyRepository).db.Exec(
		"UPDATE api_keys SET is_active = 0 WHERE id = ?", "key_2"); err != nil {
		t.Fatalf("failed to deactivate key: %v", err)
	}

	_, err := repos.APIKeys.Consume(ctx, "key_2", 1)
	if !errors.Is(err, ErrKeyInactive) {
		t.Errorf("Consume() on inactive key error = %v, want ErrKeyInactive", err)
	}

	// The balance must not change just because the key is disabled.
	key, err := repos.APIKeys.GetByID(ctx, "key_2")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if key.RemainingCredits != 10 {
		t.Errorf("RemainingCredits = %d, want 10", key.RemainingCredits)
	}
}

func TestAPIKeyRepository_ConsumeUnknownKey(t *testing.T) {
	repos := setupTestRepos(t)

	_, err := repos.APIKeys.Consume(context.Background(), "no-such-key", 1)
	if !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Consume() on unknown key error = %v, want ErrKeyNotFound", err)
	}
}

func TestAPIKeyRepository_GetByKeyHash(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestAPIKey(t, repos, "key_3", 5)

	key, err := repos.APIKeys.GetByKeyHash(ctx, "hash-key_3")
	if err != nil {
		t.Fatalf("GetByKeyHash() error = %v", err)
	}
	if key == nil || key.ID != "key_3" {
		t.Fatalf("GetByKeyHash() = %+v, want key_3", key)
	}

	if _, err := repos.APIKeys.GetByKeyHash(ctx, "no-such-hash"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("GetByKeyHash() unknown hash error = %v, want sql.ErrNoRows", err)
	}
}

func TestAPIKeyRepository_AddCredits(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestAPIKey(t, repos, "key_4", 1)

	if err := repos.APIKeys.AddCredits(ctx, "key_4", 9); err != nil {
		t.Fatalf("AddCredits() error = %v", err)
	}
	key, _ := repos.APIKeys.GetByID(ctx, "key_4")
	if key.RemainingCredits != 10 {
		t.Errorf("RemainingCredits = %d, want 10", key.RemainingCredits)
	}

	if err := repos.APIKeys.AddCredits(ctx, "missing", 1); err == nil {
		t.Error("expected error for unknown key")
	}
}
