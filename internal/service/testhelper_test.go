package service

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/7and1/robotscraping/internal/browser"
	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/database/migrations"
	"github.com/7and1/robotscraping/internal/llm"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
)

// setupTestDB creates an in-memory database with migrations applied.
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
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepos creates repositories over a fresh in-memory database.
func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	return repository.NewRepositories(setupTestDB(t))
}

// newTestConfig returns a config with caching on and the proxy off.
func newTestConfig() *config.Config {
	return &config.Config{
		CacheEnabled:    true,
		CacheTTL:        15 * time.Minute,
		MaxContentChars: 20000,
		MaxBatchSize:    10,
		JanitorInterval: time.Hour,
		LogRetention:    30 * 24 * time.Hour,
	}
}

func insertTestAPIKey(t *testing.T, repos *repository.Repositories, id string, credits int) {
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

// stubRenderer returns a fixed page for every URL.
type stubRenderer struct {
	result *browser.ScrapeResult
	err    error
	calls  int
}

func (r *stubRenderer) Scrape(_ context.Context, _ string, _ *models.ExtractOptions) (*browser.ScrapeResult, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.result, nil
}

// stubProxy returns a fixed page for every fetch.
type stubProxy struct {
	result *browser.ScrapeResult
	err    error
	calls  int
}

func (p *stubProxy) Fetch(_ context.Context, _ string) (*browser.ScrapeResult, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

// stubExtractor returns a fixed extraction result.
type stubExtractor struct {
	result *llm.Result
	err    error
	calls  int
}

func (e *stubExtractor) Extract(_ context.Context, _ llm.Request) (*llm.Result, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func testLogger() *slog.Logger {
	return slog.Default()
}
