package repository

import (
	"context"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/7and1/robotscraping/internal/models"
)

func insertTestScrapeLog(t *testing.T, repos *Repositories, apiKeyID, status string, tokens int, blocked bool) {
	t.Helper()
	log := &models.ScrapeLog{
		ID:         ulid.Make().String(),
		APIKeyID:   apiKeyID,
		URL:        "https://example.com/item",
		FieldsJSON: `["title"]`,
		TokenUsage: tokens,
		LatencyMs:  1500,
		Status:     status,
		Blocked:    blocked,
		CreatedAt:  time.Now().UTC(),
	}
	if err := repos.Logs.CreateScrape(context.Background(), log); err != nil {
		t.Fatalf("failed to insert scrape log: %v", err)
	}
}

func TestLogRepository_Summary(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestScrapeLog(t, repos, "key_1", "success", 100, false)
	insertTestScrapeLog(t, repos, "key_1", "success", 200, false)
	insertTestScrapeLog(t, repos, "key_1", "failed", 0, false)
	insertTestScrapeLog(t, repos, "key_1", "blocked", 0, true)
	insertTestScrapeLog(t, repos, "key_2", "success", 999, false)

	summary, err := repos.Logs.Summary(ctx, "key_1")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if summary.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", summary.TotalRequests)
	}
	if summary.TotalTokens != 300 {
		t.Errorf("TotalTokens = %d, want 300", summary.TotalTokens)
	}
	if summary.TotalBlocked != 1 {
		t.Errorf("TotalBlocked = %d, want 1", summary.TotalBlocked)
	}
	if summary.TotalFailed != 1 {
		t.Errorf("TotalFailed = %d, want 1", summary.TotalFailed)
	}
}

func TestLogRepository_DailySeries(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestScrapeLog(t, repos, "key_1", "success", 50, false)
	insertTestScrapeLog(t, repos, "key_1", "success", 70, false)

	series, err := repos.Logs.DailySeries(ctx, "key_1", 30)
	if err != nil {
		t.Fatalf("DailySeries() error = %v", err)
	}
	if len(series) != 1 {
		t.Fatalf("len(series) = %d, want 1", len(series))
	}
	today := time.Now().UTC().Format("2006-01-02")
	if series[0].Date != today {
		t.Errorf("Date = %s, want %s", series[0].Date, today)
	}
	if series[0].Requests != 2 || series[0].TokenUsage != 120 {
		t.Errorf("day = %+v", series[0])
	}
}

func TestLogRepository_Events(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		event := &models.EventLog{
			ID:        ulid.Make().String(),
			APIKeyID:  "key_1",
			Event:     models.EventCacheHit,
			MetaJSON:  `{"fingerprint":"fp-1"}`,
			CreatedAt: time.Now().UTC(),
		}
		if err := repos.Logs.CreateEvent(ctx, event); err != nil {
			t.Fatalf("CreateEvent() error = %v", err)
		}
	}

	count, err := repos.Logs.CountEvents(ctx, "key_1", models.EventCacheHit)
	if err != nil {
		t.Fatalf("CountEvents() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestLogRepository_DeleteOlderThan(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestScrapeLog(t, repos, "key_1", "success", 10, false)

	deleted, err := repos.Logs.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("DeleteOlderThan() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
}
