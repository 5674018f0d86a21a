// Package schedule materialises recurring extractions into jobs.
package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Five-field expressions (minute hour dom month dow), evaluated in UTC.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Parse validates a cron expression.
func Parse(expr string) (cron.Schedule, error) {
	s, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return s, nil
}

// NextAfter returns the first fire time strictly after the given instant.
func NextAfter(expr string, after time.Time) (time.Time, error) {
	s, err := Parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(after.UTC()), nil
}
