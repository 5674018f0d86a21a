// Package browser renders pages through the headless rendering service and
// distills the result into LLM-sized text.
package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/7and1/robotscraping/internal/models"
)

// ScrapeResult is the distilled output of one page render.
type ScrapeResult struct {
	Content        string `json:"content"`
	Title          string `json:"title,omitempty"`
	Description    string `json:"description,omitempty"`
	Blocked        bool   `json:"blocked"`
	Screenshot     []byte `json:"-"`
	ScreenshotType string `json:"screenshot_type,omitempty"` // webp, png, jpg
}

// Adapter drives the rendering service and post-processes its output.
type Adapter struct {
	rendererURL string
	client      *http.Client
	maxChars    int
	timeout     time.Duration
	logger      *slog.Logger
}

// NewAdapter creates a browser adapter against the given renderer endpoint.
func NewAdapter(rendererURL string, timeout time.Duration, maxChars int, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{
		rendererURL: rendererURL,
		client:      &http.Client{Timeout: timeout + 5*time.Second},
		maxChars:    maxChars,
		timeout:     timeout,
		logger:      logger,
	}
}

type renderRequest struct {
	URL        string `json:"url"`
	WaitUntil  string `json:"waitUntil,omitempty"`
	TimeoutMs  int    `json:"timeoutMs,omitempty"`
	Screenshot bool   `json:"screenshot,omitempty"`
	// The renderer aborts image, media and font requests to keep renders
	// bounded; block_resources is its flag for that behaviour.
	BlockResources bool `json:"block_resources"`
}

type renderResponse struct {
	HTML           string `json:"html"`
	Title          string `json:"title,omitempty"`
	Screenshot     string `json:"screenshot,omitempty"` // base64
	ScreenshotType string `json:"screenshot_type,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Scrape renders url and distills the page. A blocked page is not an error;
// the result carries Blocked=true and the caller decides what to do with it.
func (a *Adapter) Scrape(ctx context.Context, url string, opts *models.ExtractOptions) (*ScrapeResult, error) {
	req := renderRequest{
		URL:            url,
		TimeoutMs:      int(a.timeout / time.Millisecond),
		BlockResources: true,
	}
	if opts != nil {
		req.Screenshot = opts.Screenshot
		if opts.WaitUntil != "" {
			req.WaitUntil = opts.WaitUntil
		}
		if opts.TimeoutMs != 0 {
			req.TimeoutMs = opts.TimeoutMs
		}
	}

	resp, err := a.render(ctx, req)
	if err != nil {
		return nil, err
	}

	result, err := Distill(resp.HTML, a.maxChars)
	if err != nil {
		return nil, fmt.Errorf("failed to distill page: %w", err)
	}
	if resp.Title != "" {
		result.Title = resp.Title
	}
	result.Blocked = IsBlocked(result.Content) || IsBlocked(result.Title)

	if resp.Screenshot != "" {
		shot, err := base64.StdEncoding.DecodeString(resp.Screenshot)
		if err != nil {
			a.logger.Warn("discarding undecodable screenshot", "url", url, "error", err)
		} else {
			result.Screenshot = shot
			result.ScreenshotType = resp.ScreenshotType
			if result.ScreenshotType == "" {
				result.ScreenshotType = "png"
			}
		}
	}
	return result, nil
}

func (a *Adapter) render(ctx context.Context, req renderRequest) (*renderResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode render request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.rendererURL+"/render", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build render request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("rendering service unavailable: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read render response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rendering service returned %d: %s", httpResp.StatusCode, truncate(string(raw), 200))
	}

	var resp renderResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode render response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("render failed: %s", resp.Error)
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
