package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
)

func insertScrape(t *testing.T, repos *repository.Repositories, apiKeyID, status string, tokens int) {
	t.Helper()
	row := &models.ScrapeLog{
		ID:         uuid.NewString(),
		APIKeyID:   apiKeyID,
		URL:        "https://example.com/page",
		Status:     status,
		TokenUsage: tokens,
		LatencyMs:  1200,
		Blocked:    status == "blocked",
		CreatedAt:  time.Now().UTC(),
	}
	if err := repos.Logs.CreateScrape(context.Background(), row); err != nil {
		t.Fatalf("CreateScrape() error = %v", err)
	}
}

func TestUsageReport(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewUsageService(repos, testLogger())
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 10)

	insertScrape(t, repos, "key1", "success", 300)
	insertScrape(t, repos, "key1", "success", 500)
	insertScrape(t, repos, "key1", "blocked", 0)
	insertScrape(t, repos, "key1", "failed", 0)

	report, err := svc.Report(ctx, "key1")
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if report.Summary.TotalRequests != 4 {
		t.Errorf("TotalRequests = %d, want 4", report.Summary.TotalRequests)
	}
	if report.Summary.TotalTokens != 800 {
		t.Errorf("TotalTokens = %d, want 800", report.Summary.TotalTokens)
	}
	if report.Summary.TotalBlocked != 1 || report.Summary.TotalFailed != 1 {
		t.Errorf("blocked/failed = %d/%d, want 1/1", report.Summary.TotalBlocked, report.Summary.TotalFailed)
	}
	if len(report.Recent) != 4 {
		t.Errorf("len(Recent) = %d, want 4", len(report.Recent))
	}
	if len(report.Daily) == 0 {
		t.Error("Daily series should cover today")
	}
}

func TestUsageExportCSV(t *testing.T) {
	repos := setupTestRepos(t)
	svc := NewUsageService(repos, testLogger())
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 10)
	insertScrape(t, repos, "key1", "success", 300)
	insertScrape(t, repos, "key1", "failed", 0)

	var buf bytes.Buffer
	from := time.Now().UTC().Add(-time.Hour)
	to := time.Now().UTC().Add(time.Hour)
	if err := svc.ExportCSV(ctx, &buf, "key1", from, to); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("csv parse error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want header plus 2 rows", len(records))
	}
	if records[0][0] != "created_at" || records[0][2] != "status" {
		t.Errorf("header = %v", records[0])
	}
}
