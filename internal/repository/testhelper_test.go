package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/7and1/robotscraping/internal/database/migrations"
	"github.com/7and1/robotscraping/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
// It runs migrations and returns a database connection that will be cleaned up
// when the test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

// insertTestAPIKey inserts an active API key with the given credit balance.
func insertTestAPIKey(t *testing.T, repos *Repositories, id string, credits int) {
	t.Helper()
	key := &models.APIKey{
		ID:               id,
		Owner:            "test@example.com",
		KeyHash:          "hash-" + id,
		KeyPrefix:        "rk_test_",
		Tier:             "standard",
		RemainingCredits: credits,
		IsActive:         true,
		CreatedAt:        time.Now().UTC(),
	}
	if err := repos.APIKeys.Create(context.Background(), key); err != nil {
		t.Fatalf("failed to insert test api key: %v", err)
	}
}

// insertTestJob inserts a job in the given state.
func insertTestJob(t *testing.T, repos *Repositories, id, apiKeyID string, status models.JobStatus) {
	t.Helper()
	now := time.Now().UTC()
	job := &models.Job{
		ID:         id,
		APIKeyID:   apiKeyID,
		Status:     status,
		URL:        "https://example.com/page",
		ParamsJSON: `{"fields":["title"]}`,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repos.Jobs.Create(context.Background(), job); err != nil {
		t.Fatalf("failed to insert test job: %v", err)
	}
	if status == models.JobStatusProcessing {
		if _, err := repos.Jobs.MarkProcessing(context.Background(), id); err != nil {
			t.Fatalf("failed to move test job to processing: %v", err)
		}
	}
}
