package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// SQLiteLogRepository implements LogRepository for SQLite.
type SQLiteLogRepository struct {
	db *sql.DB
}

// NewSQLiteLogRepository creates a new SQLite log repository.
func NewSQLiteLogRepository(db *sql.DB) *SQLiteLogRepository {
	return &SQLiteLogRepository{db: db}
}

const scrapeLogColumns = `id, api_key_id, url, fields_json, schema_json, token_usage,
	latency_ms, status, error_msg, content_path, screenshot_path, blocked, created_at`

func (r *SQLiteLogRepository) CreateScrape(ctx context.Context, log *models.ScrapeLog) error {
	query := `
		INSERT INTO scrape_logs (` + scrapeLogColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	blocked := 0
	if log.Blocked {
		blocked = 1
	}
	_, err := r.db.ExecContext(ctx, query,
		log.ID,
		nullString(log.APIKeyID),
		log.URL,
		nullString(log.FieldsJSON),
		nullString(log.SchemaJSON),
		log.TokenUsage,
		log.LatencyMs,
		log.Status,
		nullString(log.ErrorMsg),
		nullString(log.ContentPath),
		nullString(log.ScreenshotPath),
		blocked,
		log.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create scrape log: %w", err)
	}
	return nil
}

func (r *SQLiteLogRepository) CreateEvent(ctx context.Context, event *models.EventLog) error {
	query := `
		INSERT INTO event_logs (id, api_key_id, event, meta_json, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		nullString(event.APIKeyID),
		event.Event,
		nullString(event.MetaJSON),
		event.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to create event log: %w", err)
	}
	return nil
}

func (r *SQLiteLogRepository) ListRecent(ctx context.Context, apiKeyID string, limit int) ([]*models.ScrapeLog, error) {
	query := `SELECT ` + scrapeLogColumns + ` FROM scrape_logs WHERE api_key_id = ? ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, apiKeyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape logs: %w", err)
	}
	defer rows.Close()
	return r.scanScrapeLogs(rows)
}

func (r *SQLiteLogRepository) ListRange(ctx context.Context, apiKeyID string, from, to time.Time) ([]*models.ScrapeLog, error) {
	query := `
		SELECT ` + scrapeLogColumns + ` FROM scrape_logs
		WHERE api_key_id = ? AND created_at >= ? AND created_at <= ?
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, apiKeyID,
		from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to query scrape logs: %w", err)
	}
	defer rows.Close()
	return r.scanScrapeLogs(rows)
}

func (r *SQLiteLogRepository) Summary(ctx context.Context, apiKeyID string) (*UsageSummary, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(token_usage), 0),
			COALESCE(SUM(blocked), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(AVG(latency_ms), 0)
		FROM scrape_logs WHERE api_key_id = ?
	`
	var summary UsageSummary
	err := r.db.QueryRowContext(ctx, query, apiKeyID).Scan(
		&summary.TotalRequests, &summary.TotalTokens, &summary.TotalBlocked,
		&summary.TotalFailed, &summary.AvgLatencyMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to summarise usage: %w", err)
	}

	hits, err := r.CountEvents(ctx, apiKeyID, models.EventCacheHit)
	if err != nil {
		return nil, err
	}
	summary.CacheHits = hits
	return &summary, nil
}

// DailySeries returns per-day aggregates for the trailing N days, oldest
// first. Days without traffic are omitted.
func (r *SQLiteLogRepository) DailySeries(ctx context.Context, apiKeyID string, days int) ([]DailyUsage, error) {
	since := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	query := `
		SELECT substr(created_at, 1, 10) AS day,
			COUNT(*),
			COALESCE(SUM(token_usage), 0),
			COALESCE(SUM(blocked), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0)
		FROM scrape_logs
		WHERE api_key_id = ? AND created_at >= ?
		GROUP BY day ORDER BY day ASC
	`
	rows, err := r.db.QueryContext(ctx, query, apiKeyID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage series: %w", err)
	}
	defer rows.Close()

	var series []DailyUsage
	for rows.Next() {
		var d DailyUsage
		if err := rows.Scan(&d.Date, &d.Requests, &d.TokenUsage, &d.Blocked, &d.Failed); err != nil {
			return nil, fmt.Errorf("failed to scan usage day: %w", err)
		}
		// The driver hands date-shaped strings back as full RFC3339; keep
		// only the YYYY-MM-DD the query grouped on.
		if len(d.Date) > 10 {
			d.Date = d.Date[:10]
		}
		series = append(series, d)
	}
	return series, rows.Err()
}

func (r *SQLiteLogRepository) CountEvents(ctx context.Context, apiKeyID, event string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM event_logs WHERE api_key_id = ? AND event = ?",
		apiKeyID, event,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}

func (r *SQLiteLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	cutoff := before.UTC().Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx, "DELETE FROM scrape_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scrape logs: %w", err)
	}
	scrapes, _ := result.RowsAffected()

	result, err = r.db.ExecContext(ctx, "DELETE FROM event_logs WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old event logs: %w", err)
	}
	events, _ := result.RowsAffected()

	return scrapes + events, nil
}

func (r *SQLiteLogRepository) scanScrapeLogs(rows *sql.Rows) ([]*models.ScrapeLog, error) {
	var logs []*models.ScrapeLog
	for rows.Next() {
		var log models.ScrapeLog
		var apiKeyID, fieldsJSON, schemaJSON, errorMsg, contentPath, screenshotPath sql.NullString
		var blocked int
		var createdAt string

		err := rows.Scan(
			&log.ID, &apiKeyID, &log.URL, &fieldsJSON, &schemaJSON,
			&log.TokenUsage, &log.LatencyMs, &log.Status, &errorMsg,
			&contentPath, &screenshotPath, &blocked, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scrape log: %w", err)
		}

		log.APIKeyID = apiKeyID.String
		log.FieldsJSON = fieldsJSON.String
		log.SchemaJSON = schemaJSON.String
		log.ErrorMsg = errorMsg.String
		log.ContentPath = contentPath.String
		log.ScreenshotPath = screenshotPath.String
		log.Blocked = blocked == 1
		log.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}
