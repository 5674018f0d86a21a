// Package validation checks extraction requests before any credit is spent.
package validation

import (
	"fmt"
	"strings"

	"github.com/7and1/robotscraping/internal/models"
)

const (
	maxFields           = 50
	maxInstructionChars = 2000
	minTimeoutMs        = 1000
	maxTimeoutMs        = 60000
)

// ValidateExtract checks an extraction request. The zero-credit contract
// holds: nothing here touches the network or the database.
func ValidateExtract(p *models.ExtractParams) error {
	if strings.TrimSpace(p.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if err := CheckURL(p.URL); err != nil {
		return err
	}

	// An explicit empty list is a mistake, not an omission.
	if p.Fields != nil && len(p.Fields) == 0 {
		return fmt.Errorf("fields must not be empty when given")
	}
	if len(p.Fields) == 0 && len(p.Schema) == 0 {
		return fmt.Errorf("one of fields or schema is required")
	}
	if len(p.Fields) > maxFields {
		return fmt.Errorf("fields may list at most %d entries", maxFields)
	}
	for i, f := range p.Fields {
		if strings.TrimSpace(f) == "" {
			return fmt.Errorf("fields[%d] is empty", i)
		}
	}

	if len(p.Instructions) > maxInstructionChars {
		return fmt.Errorf("instructions exceed %d characters", maxInstructionChars)
	}

	if p.Options != nil {
		if err := validateOptions(p.Options); err != nil {
			return err
		}
	}
	return nil
}

func validateOptions(o *models.ExtractOptions) error {
	switch o.WaitUntil {
	case "", "domcontentloaded", "networkidle0":
	default:
		return fmt.Errorf("waitUntil must be domcontentloaded or networkidle0")
	}
	if o.TimeoutMs != 0 && (o.TimeoutMs < minTimeoutMs || o.TimeoutMs > maxTimeoutMs) {
		return fmt.Errorf("timeoutMs must be between %d and %d", minTimeoutMs, maxTimeoutMs)
	}
	return nil
}

// ValidateWebhook checks an optional webhook target.
func ValidateWebhook(url string) error {
	if url == "" {
		return nil
	}
	return CheckWebhookURL(url)
}

// ValidateCron checks that a cron expression is present. Parsing is left to
// the scheduler's cron library so the accepted grammar stays in one place.
func ValidateCron(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return fmt.Errorf("cron expression is required")
	}
	return nil
}
