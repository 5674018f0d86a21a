package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
)

const (
	usageRecentLimit = 50
	usageSeriesDays  = 30
)

// UsageReport is the dashboard view of one API key's activity.
type UsageReport struct {
	Summary *repository.UsageSummary `json:"summary"`
	Daily   []repository.DailyUsage  `json:"daily"`
	Recent  []*models.ScrapeLog      `json:"recent"`
}

// UsageService reports on extraction history and spend.
type UsageService struct {
	repos  *repository.Repositories
	logger *slog.Logger
}

// NewUsageService creates a new usage service.
func NewUsageService(repos *repository.Repositories, logger *slog.Logger) *UsageService {
	return &UsageService{repos: repos, logger: logger}
}

// Report assembles the totals, the thirty-day series, and the most recent
// extractions for one key.
func (s *UsageService) Report(ctx context.Context, apiKeyID string) (*UsageReport, error) {
	summary, err := s.repos.Logs.Summary(ctx, apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("failed to build usage summary: %w", err)
	}
	daily, err := s.repos.Logs.DailySeries(ctx, apiKeyID, usageSeriesDays)
	if err != nil {
		return nil, fmt.Errorf("failed to build daily series: %w", err)
	}
	recent, err := s.repos.Logs.ListRecent(ctx, apiKeyID, usageRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent extractions: %w", err)
	}

	return &UsageReport{Summary: summary, Daily: daily, Recent: recent}, nil
}

// ExportCSV streams the key's extraction log for the given range as CSV.
func (s *UsageService) ExportCSV(ctx context.Context, w io.Writer, apiKeyID string, from, to time.Time) error {
	rows, err := s.repos.Logs.ListRange(ctx, apiKeyID, from, to)
	if err != nil {
		return fmt.Errorf("failed to list extractions: %w", err)
	}

	cw := csv.NewWriter(w)
	header := []string{"created_at", "url", "status", "token_usage", "latency_ms", "blocked", "error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.URL,
			row.Status,
			strconv.Itoa(row.TokenUsage),
			strconv.Itoa(row.LatencyMs),
			strconv.FormatBool(row.Blocked),
			row.ErrorMsg,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
