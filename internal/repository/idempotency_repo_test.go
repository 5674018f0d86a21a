package repository

import (
	"context"
	"testing"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

func TestIdempotencyRepository_PutGet(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := &models.IdempotencyEntry{
		Key:        "client-req-1",
		BodyHash:   "deadbeef",
		StatusCode: 200,
		Response:   `{"success":true,"data":{}}`,
		CreatedAt:  now,
		ExpiresAt:  now.Add(48 * time.Hour),
	}
	if err := repos.Idempotency.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := repos.Idempotency.Get(ctx, "client-req-1", now)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("Get() returned nil")
	}
	if got.BodyHash != "deadbeef" || got.StatusCode != 200 {
		t.Errorf("got = %+v", got)
	}
}

func TestIdempotencyRepository_ExpiredNotReturned(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	entry := &models.IdempotencyEntry{
		Key:        "client-req-old",
		BodyHash:   "cafe",
		StatusCode: 202,
		Response:   `{}`,
		CreatedAt:  now.Add(-49 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}
	if err := repos.Idempotency.Put(ctx, entry); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := repos.Idempotency.Get(ctx, "client-req-old", now)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Error("expired entry should not be returned")
	}

	deleted, err := repos.Idempotency.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
