package service

import (
	"context"
	"errors"
	"testing"

	"github.com/7and1/robotscraping/internal/browser"
	"github.com/7and1/robotscraping/internal/llm"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/storage"
)

func newTestPipeline(t *testing.T, renderer *stubRenderer, proxy *stubProxy, extractor *stubExtractor) (*ExtractionService, *storage.MemoryStore) {
	t.Helper()
	repos := setupTestRepos(t)
	insertTestAPIKey(t, repos, "key1", 100)
	store := storage.NewMemoryStore()

	var pf ProxyFetcher
	if proxy != nil {
		pf = proxy
	}
	svc := NewExtractionService(newTestConfig(), repos, store, renderer, pf, extractor, testLogger())
	return svc, store
}

func goodPage() *browser.ScrapeResult {
	return &browser.ScrapeResult{
		Content: "# Example Product\nWidget Deluxe priced at $19.99",
		Title:   "Example Product",
	}
}

func goodResult() *llm.Result {
	return &llm.Result{
		Data:  map[string]any{"title": "Widget Deluxe", "price": "$19.99"},
		Usage: 321,
	}
}

func extractParams() *models.ExtractParams {
	return &models.ExtractParams{
		URL:    "https://example.com/product",
		Fields: []string{"title", "price"},
	}
}

func TestExtractLiveRun(t *testing.T) {
	renderer := &stubRenderer{result: goodPage()}
	extractor := &stubExtractor{result: goodResult()}
	svc, _ := newTestPipeline(t, renderer, nil, extractor)

	outcome, err := svc.Extract(context.Background(), "key1", extractParams())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if outcome.CacheHit {
		t.Error("first run must not be a cache hit")
	}
	if outcome.Document.Data["title"] != "Widget Deluxe" {
		t.Errorf("Data = %v", outcome.Document.Data)
	}
	if outcome.Document.Meta.TokenUsage != 321 {
		t.Errorf("TokenUsage = %d, want 321", outcome.Document.Meta.TokenUsage)
	}
	if renderer.calls != 1 || extractor.calls != 1 {
		t.Errorf("calls = renderer %d extractor %d, want 1 and 1", renderer.calls, extractor.calls)
	}
}

func TestExtractSecondRunHitsCache(t *testing.T) {
	renderer := &stubRenderer{result: goodPage()}
	extractor := &stubExtractor{result: goodResult()}
	svc, _ := newTestPipeline(t, renderer, nil, extractor)
	ctx := context.Background()

	if _, err := svc.Extract(ctx, "key1", extractParams()); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	outcome, err := svc.Extract(ctx, "key1", extractParams())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !outcome.CacheHit {
		t.Fatal("second identical run should hit the cache")
	}
	if outcome.CacheAgeMs < 0 {
		t.Errorf("CacheAgeMs = %d, want >= 0", outcome.CacheAgeMs)
	}
	if outcome.Document.Data["title"] != "Widget Deluxe" {
		t.Errorf("Data = %v", outcome.Document.Data)
	}
	if renderer.calls != 1 || extractor.calls != 1 {
		t.Errorf("cache hit must not re-render or re-extract, calls = %d/%d", renderer.calls, extractor.calls)
	}

	// Field order must not break fingerprinting.
	reordered := &models.ExtractParams{
		URL:    "https://example.com/product",
		Fields: []string{"price", "title"},
	}
	outcome, err = svc.Extract(ctx, "key1", reordered)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if !outcome.CacheHit {
		t.Error("reordered fields should map to the same cache entry")
	}
}

func TestExtractCacheDisabled(t *testing.T) {
	renderer := &stubRenderer{result: goodPage()}
	extractor := &stubExtractor{result: goodResult()}
	repos := setupTestRepos(t)
	insertTestAPIKey(t, repos, "key1", 100)
	cfg := newTestConfig()
	cfg.CacheEnabled = false
	svc := NewExtractionService(cfg, repos, storage.NewMemoryStore(), renderer, nil, extractor, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		outcome, err := svc.Extract(ctx, "key1", extractParams())
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if outcome.CacheHit {
			t.Error("cache disabled must never report a hit")
		}
	}
	if renderer.calls != 2 {
		t.Errorf("renderer.calls = %d, want 2", renderer.calls)
	}
}

func TestExtractBlockedWithoutProxy(t *testing.T) {
	renderer := &stubRenderer{result: &browser.ScrapeResult{Content: "Access denied", Blocked: true}}
	extractor := &stubExtractor{result: goodResult()}
	svc, _ := newTestPipeline(t, renderer, nil, extractor)

	_, err := svc.Extract(context.Background(), "key1", extractParams())
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("Extract() error = %v, want ErrBlocked", err)
	}
	if extractor.calls != 0 {
		t.Error("blocked pages must not reach the extractor")
	}
}

func TestExtractProxyFallback(t *testing.T) {
	renderer := &stubRenderer{result: &browser.ScrapeResult{Content: "Access denied", Blocked: true}}
	proxy := &stubProxy{result: goodPage()}
	extractor := &stubExtractor{result: goodResult()}

	repos := setupTestRepos(t)
	insertTestAPIKey(t, repos, "key1", 100)
	cfg := newTestConfig()
	cfg.ProxyFallbackEnabled = true
	cfg.ProxyFallbackURL = "https://proxy.internal"
	svc := NewExtractionService(cfg, repos, storage.NewMemoryStore(), renderer, proxy, extractor, testLogger())

	outcome, err := svc.Extract(context.Background(), "key1", extractParams())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if proxy.calls != 1 {
		t.Errorf("proxy.calls = %d, want 1", proxy.calls)
	}
	if !outcome.Document.Meta.ProxyUsed {
		t.Error("Meta.ProxyUsed should be true after fallback")
	}
}

func TestExtractProxyFallbackStillBlocked(t *testing.T) {
	renderer := &stubRenderer{result: &browser.ScrapeResult{Content: "Access denied", Blocked: true}}
	proxy := &stubProxy{result: &browser.ScrapeResult{Content: "robot check", Blocked: true}}
	extractor := &stubExtractor{result: goodResult()}

	repos := setupTestRepos(t)
	insertTestAPIKey(t, repos, "key1", 100)
	cfg := newTestConfig()
	cfg.ProxyFallbackEnabled = true
	cfg.ProxyFallbackURL = "https://proxy.internal"
	svc := NewExtractionService(cfg, repos, storage.NewMemoryStore(), renderer, proxy, extractor, testLogger())

	_, err := svc.Extract(context.Background(), "key1", extractParams())
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("Extract() error = %v, want ErrBlocked", err)
	}
}

func TestExtractParseErrorSkipsCache(t *testing.T) {
	renderer := &stubRenderer{result: goodPage()}
	extractor := &stubExtractor{result: &llm.Result{
		Data:       map[string]any{},
		Usage:      10,
		ParseError: "model returned prose instead of JSON",
	}}
	svc, _ := newTestPipeline(t, renderer, nil, extractor)
	ctx := context.Background()

	outcome, err := svc.Extract(ctx, "key1", extractParams())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if outcome.Document.Meta.ParseError == "" {
		t.Error("parse error should be surfaced in meta")
	}

	outcome, err = svc.Extract(ctx, "key1", extractParams())
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if outcome.CacheHit {
		t.Error("unparseable results must not be cached")
	}
}

func TestExtractStoresArtifacts(t *testing.T) {
	page := goodPage()
	page.Screenshot = []byte("fake-webp-bytes")
	page.ScreenshotType = "webp"
	renderer := &stubRenderer{result: page}
	extractor := &stubExtractor{result: goodResult()}
	svc, store := newTestPipeline(t, renderer, nil, extractor)

	params := extractParams()
	params.Options = &models.ExtractOptions{Screenshot: true, StoreContent: true}

	outcome, err := svc.Extract(context.Background(), "key1", params)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if outcome.Document.Meta.ScreenshotPath == "" || outcome.Document.Meta.ContentPath == "" {
		t.Fatalf("artifact paths missing: %+v", outcome.Document.Meta)
	}
	if _, err := store.Get(context.Background(), outcome.Document.Meta.ScreenshotPath); err != nil {
		t.Errorf("screenshot blob missing: %v", err)
	}
	if _, err := store.Get(context.Background(), outcome.Document.Meta.ContentPath); err != nil {
		t.Errorf("content blob missing: %v", err)
	}
}

func TestExtractRejectsInvalidParams(t *testing.T) {
	renderer := &stubRenderer{result: goodPage()}
	extractor := &stubExtractor{result: goodResult()}
	svc, _ := newTestPipeline(t, renderer, nil, extractor)

	_, err := svc.Extract(context.Background(), "key1", &models.ExtractParams{
		URL:    "http://localhost/admin",
		Fields: []string{"title"},
	})
	if err == nil {
		t.Fatal("loopback target must be rejected")
	}
	if renderer.calls != 0 {
		t.Error("invalid params must not reach the renderer")
	}
}
