package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ProxyClient fetches pages through the residential proxy grid. It is the
// second attempt after a direct render comes back blocked, gated by config
// and the per-key allowlist.
type ProxyClient struct {
	url      string
	secret   string
	client   *http.Client
	maxChars int
	logger   *slog.Logger
}

// NewProxyClient creates a proxy grid client.
func NewProxyClient(url, secret string, timeout time.Duration, maxChars int, logger *slog.Logger) *ProxyClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProxyClient{
		url:      url,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
		maxChars: maxChars,
		logger:   logger,
	}
}

type proxyRequest struct {
	URL string `json:"url"`
}

type proxyResponse struct {
	HTML  string `json:"html"`
	Error string `json:"error,omitempty"`
}

// Fetch renders url through the proxy grid and distills the result.
func (p *ProxyClient) Fetch(ctx context.Context, url string) (*ScrapeResult, error) {
	body, err := json.Marshal(proxyRequest{URL: url})
	if err != nil {
		return nil, fmt.Errorf("failed to encode proxy request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/fetch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build proxy request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.secret != "" {
		req.Header.Set("Authorization", "Bearer "+p.secret)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy grid unavailable: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read proxy response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy grid returned %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var pr proxyResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode proxy response: %w", err)
	}
	if pr.Error != "" {
		return nil, fmt.Errorf("proxy fetch failed: %s", pr.Error)
	}

	result, err := Distill(pr.HTML, p.maxChars)
	if err != nil {
		return nil, fmt.Errorf("failed to distill proxied page: %w", err)
	}
	result.Blocked = IsBlocked(result.Content) || IsBlocked(result.Title)
	return result, nil
}
