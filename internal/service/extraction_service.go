package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/browser"
	"github.com/7and1/robotscraping/internal/cache"
	"github.com/7and1/robotscraping/internal/config"
	"github.com/7and1/robotscraping/internal/llm"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/storage"
	"github.com/7and1/robotscraping/internal/validation"
)

// Renderer fetches and distils a page through the headless browser service.
type Renderer interface {
	Scrape(ctx context.Context, url string, opts *models.ExtractOptions) (*browser.ScrapeResult, error)
}

// ProxyFetcher fetches a page through the fallback proxy grid.
type ProxyFetcher interface {
	Fetch(ctx context.Context, url string) (*browser.ScrapeResult, error)
}

// Extractor turns distilled page content into structured data.
type Extractor interface {
	Extract(ctx context.Context, req llm.Request) (*llm.Result, error)
}

// CacheMeta reports how the cache served a particular response.
type CacheMeta struct {
	Hit   bool  `json:"hit"`
	AgeMs int64 `json:"ageMs,omitempty"`
}

// ResultMeta is the metadata block stored next to extracted data. Cache is
// per-serving and only set on responses, never in the stored document.
type ResultMeta struct {
	URL            string     `json:"url"`
	TokenUsage     int        `json:"tokens"`
	LatencyMs      int        `json:"latencyMs"`
	ContentChars   int        `json:"contentChars"`
	ProxyUsed      bool       `json:"proxyUsed,omitempty"`
	ParseError     string     `json:"parseError,omitempty"`
	ScreenshotPath string     `json:"screenshotPath,omitempty"`
	ContentPath    string     `json:"contentPath,omitempty"`
	ExtractedAt    time.Time  `json:"extractedAt"`
	Cache          *CacheMeta `json:"cache,omitempty"`
}

// ResultDocument is the JSON document persisted to the blob store for every
// successful extraction.
type ResultDocument struct {
	Data map[string]any `json:"data"`
	Meta ResultMeta     `json:"meta"`
}

// Outcome is the in-process result of one extraction run.
type Outcome struct {
	ID         string
	Document   *ResultDocument
	CacheHit   bool
	CacheAgeMs int64
}

// ExtractionService runs the render, extract, and cache pipeline shared by
// the sync endpoint, the worker, and scheduled jobs.
type ExtractionService struct {
	cfg       *config.Config
	repos     *repository.Repositories
	store     storage.Store
	renderer  Renderer
	proxy     ProxyFetcher
	extractor Extractor
	logger    *slog.Logger
}

// NewExtractionService wires the pipeline. proxy may be nil when no fallback
// proxy is configured.
func NewExtractionService(cfg *config.Config, repos *repository.Repositories, store storage.Store, renderer Renderer, proxy ProxyFetcher, extractor Extractor, logger *slog.Logger) *ExtractionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractionService{
		cfg:       cfg,
		repos:     repos,
		store:     store,
		renderer:  renderer,
		proxy:     proxy,
		extractor: extractor,
		logger:    logger,
	}
}

// Extract runs the full pipeline for one request. apiKeyID is empty in
// anonymous mode. The caller has already validated and charged the request.
func (s *ExtractionService) Extract(ctx context.Context, apiKeyID string, params *models.ExtractParams) (*Outcome, error) {
	if err := validation.ValidateExtract(params); err != nil {
		return nil, err
	}

	fingerprint := cache.Fingerprint(params)
	now := time.Now().UTC()

	if s.cfg.CacheEnabled {
		if outcome := s.tryCache(ctx, apiKeyID, fingerprint, now); outcome != nil {
			return outcome, nil
		}
		s.recordEvent(ctx, apiKeyID, models.EventCacheMiss, map[string]any{"fingerprint": fingerprint})
	}

	id := uuid.NewString()
	start := time.Now()

	page, proxyUsed, err := s.fetchPage(ctx, apiKeyID, params)
	if err != nil {
		s.logScrape(ctx, id, apiKeyID, params, &models.ScrapeLog{
			Status:    "failed",
			ErrorMsg:  err.Error(),
			LatencyMs: int(time.Since(start).Milliseconds()),
		})
		return nil, err
	}
	if page.Blocked {
		s.logScrape(ctx, id, apiKeyID, params, &models.ScrapeLog{
			Status:    "blocked",
			Blocked:   true,
			LatencyMs: int(time.Since(start).Milliseconds()),
		})
		return nil, ErrBlocked
	}

	result, err := s.extractor.Extract(ctx, llm.Request{
		Content:      page.Content,
		Fields:       params.Fields,
		Schema:       params.Schema,
		Instructions: params.Instructions,
	})
	if err != nil {
		s.logScrape(ctx, id, apiKeyID, params, &models.ScrapeLog{
			Status:    "failed",
			ErrorMsg:  err.Error(),
			LatencyMs: int(time.Since(start).Milliseconds()),
		})
		return nil, fmt.Errorf("extraction failed: %w", err)
	}

	latencyMs := int(time.Since(start).Milliseconds())
	doc := &ResultDocument{
		Data: result.Data,
		Meta: ResultMeta{
			URL:          params.URL,
			TokenUsage:   result.Usage,
			LatencyMs:    latencyMs,
			ContentChars: len(page.Content),
			ProxyUsed:    proxyUsed,
			ParseError:   result.ParseError,
			ExtractedAt:  time.Now().UTC(),
		},
	}

	s.storeArtifacts(ctx, id, params, page, doc)
	if s.cfg.CacheEnabled && result.ParseError == "" {
		s.storeCache(ctx, apiKeyID, fingerprint, doc)
	}
	s.logScrape(ctx, id, apiKeyID, params, &models.ScrapeLog{
		Status:         "success",
		TokenUsage:     result.Usage,
		LatencyMs:      latencyMs,
		ContentPath:    doc.Meta.ContentPath,
		ScreenshotPath: doc.Meta.ScreenshotPath,
	})

	return &Outcome{ID: id, Document: doc}, nil
}

// tryCache returns a completed outcome when a fresh cache entry exists and
// its blob is still readable. Any failure falls through to a live run.
func (s *ExtractionService) tryCache(ctx context.Context, apiKeyID, fingerprint string, now time.Time) *Outcome {
	entry, err := s.repos.Cache.Get(ctx, fingerprint, now)
	if err != nil {
		s.logger.Warn("cache lookup failed", "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	blob, err := s.store.Get(ctx, entry.ResultPath)
	if err != nil {
		s.logger.Warn("cache blob missing, treating as miss", "path", entry.ResultPath, "error", err)
		return nil
	}
	var doc ResultDocument
	if err := json.Unmarshal(blob, &doc); err != nil {
		s.logger.Warn("cache blob undecodable, treating as miss", "path", entry.ResultPath, "error", err)
		return nil
	}

	if err := s.repos.Cache.RecordHit(ctx, fingerprint, now); err != nil {
		s.logger.Warn("failed to record cache hit", "error", err)
	}
	s.recordEvent(ctx, apiKeyID, models.EventCacheHit, map[string]any{"fingerprint": fingerprint})

	return &Outcome{
		ID:         uuid.NewString(),
		Document:   &doc,
		CacheHit:   true,
		CacheAgeMs: now.Sub(entry.CreatedAt).Milliseconds(),
	}
}

// fetchPage renders the target, falling back to the proxy grid when the
// renderer reports a block and the key is allowed to use it.
func (s *ExtractionService) fetchPage(ctx context.Context, apiKeyID string, params *models.ExtractParams) (*browser.ScrapeResult, bool, error) {
	if s.cfg.ProxyForce && s.proxy != nil {
		page, err := s.proxy.Fetch(ctx, params.URL)
		if err != nil {
			return nil, true, fmt.Errorf("proxy fetch failed: %w", err)
		}
		return page, true, nil
	}

	page, err := s.renderer.Scrape(ctx, params.URL, params.Options)
	if err != nil {
		return nil, false, fmt.Errorf("render failed: %w", err)
	}
	if !page.Blocked {
		return page, false, nil
	}

	if s.proxy == nil || !s.cfg.ProxyAllowed(apiKeyID) {
		return page, false, nil
	}

	s.recordEvent(ctx, apiKeyID, models.EventProxyFallback, map[string]any{"url": params.URL})
	s.logger.Info("renderer blocked, retrying via proxy grid", "url", params.URL)

	fallback, err := s.proxy.Fetch(ctx, params.URL)
	if err != nil {
		// The renderer's blocked result stands.
		s.logger.Warn("proxy fallback failed", "url", params.URL, "error", err)
		return page, false, nil
	}
	return fallback, true, nil
}

// storeArtifacts persists the optional screenshot and distilled content,
// recording their paths in the document meta.
func (s *ExtractionService) storeArtifacts(ctx context.Context, id string, params *models.ExtractParams, page *browser.ScrapeResult, doc *ResultDocument) {
	opts := params.Options
	if opts == nil {
		return
	}

	if opts.Screenshot && len(page.Screenshot) > 0 {
		key := storage.ScreenshotKey(id, page.ScreenshotType)
		if err := s.store.Put(ctx, key, page.Screenshot, storage.ContentTypeForImage(page.ScreenshotType)); err != nil {
			s.logger.Warn("failed to store screenshot", "key", key, "error", err)
		} else {
			doc.Meta.ScreenshotPath = key
		}
	}

	if opts.StoreContent && page.Content != "" {
		key := storage.ContentKey(id)
		if err := s.store.Put(ctx, key, []byte(page.Content), "text/plain; charset=utf-8"); err != nil {
			s.logger.Warn("failed to store page content", "key", key, "error", err)
		} else {
			doc.Meta.ContentPath = key
		}
	}
}

func (s *ExtractionService) storeCache(ctx context.Context, apiKeyID, fingerprint string, doc *ResultDocument) {
	blob, err := json.Marshal(doc)
	if err != nil {
		s.logger.Warn("failed to encode cache document", "error", err)
		return
	}

	key := storage.CacheKey(fingerprint)
	if err := s.store.Put(ctx, key, blob, "application/json"); err != nil {
		s.logger.Warn("failed to store cache blob", "key", key, "error", err)
		return
	}

	now := time.Now().UTC()
	entry := &models.CacheEntry{
		Fingerprint:  fingerprint,
		ResultPath:   key,
		TokenUsage:   doc.Meta.TokenUsage,
		ContentChars: doc.Meta.ContentChars,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.CacheTTL),
	}
	if err := s.repos.Cache.Put(ctx, entry); err != nil {
		s.logger.Warn("failed to store cache entry", "error", err)
		return
	}
	s.recordEvent(ctx, apiKeyID, models.EventCacheStore, map[string]any{"fingerprint": fingerprint})
}

func (s *ExtractionService) logScrape(ctx context.Context, id, apiKeyID string, params *models.ExtractParams, row *models.ScrapeLog) {
	row.ID = id
	row.APIKeyID = apiKeyID
	row.URL = params.URL
	if len(params.Fields) > 0 {
		if b, err := json.Marshal(params.Fields); err == nil {
			row.FieldsJSON = string(b)
		}
	}
	if len(params.Schema) > 0 {
		if b, err := json.Marshal(params.Schema); err == nil {
			row.SchemaJSON = string(b)
		}
	}
	row.CreatedAt = time.Now().UTC()

	if err := s.repos.Logs.CreateScrape(ctx, row); err != nil {
		s.logger.Warn("failed to write scrape log", "error", err)
	}
}

func (s *ExtractionService) recordEvent(ctx context.Context, apiKeyID, event string, meta map[string]any) {
	row := &models.EventLog{
		ID:        uuid.NewString(),
		APIKeyID:  apiKeyID,
		Event:     event,
		CreatedAt: time.Now().UTC(),
	}
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			row.MetaJSON = string(b)
		}
	}
	if err := s.repos.Logs.CreateEvent(ctx, row); err != nil {
		s.logger.Warn("failed to write event log", "event", event, "error", err)
	}
}
