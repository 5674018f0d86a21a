package mw

import (
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/7and1/robotscraping/internal/database/migrations"
	"github.com/7and1/robotscraping/internal/repository"
)

func setupTestRepos(t *testing.T) *repository.Repositories {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return repository.NewRepositories(db)
}

func testLogger() *slog.Logger {
	return slog.Default()
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true}`))
	})
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))
	if seen == "" {
		t.Fatal("request id missing from context")
	}
	if got := rr.Header().Get(RequestIDHeader); got != seen {
		t.Errorf("response header = %q, want %q", got, seen)
	}

	// Client-supplied ids are echoed.
	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(RequestIDHeader, "client-id-123")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if seen != "client-id-123" {
		t.Errorf("context id = %q, want client-id-123", seen)
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
	if got := rr.Header().Get("Strict-Transport-Security"); !strings.Contains(got, "max-age=") {
		t.Errorf("Strict-Transport-Security = %q", got)
	}
}

func TestMaxBodySizeRejectsDeclaredOversize(t *testing.T) {
	handler := RequestID(MaxBodySize(16)(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(strings.Repeat("x", 64)))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rr.Code)
	}
	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("body undecodable: %v", err)
	}
	if envelope.Success || envelope.Error.Code != "payload_too_large" {
		t.Errorf("envelope = %s", rr.Body.String())
	}
}

func TestStoreRateLimit(t *testing.T) {
	repos := setupTestRepos(t)
	cfg := RateLimitConfig{
		Enabled:            true,
		KeyedPerWindow:     3,
		AnonymousPerWindow: 2,
		Window:             time.Minute,
	}
	handler := RequestID(RateLimit(cfg, repos.RateLimits, nil)(okHandler()))

	send := func(apiKey string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
		req.RemoteAddr = "203.0.113.9:4455"
		if apiKey != "" {
			req.Header.Set(APIKeyHeader, apiKey)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 3; i++ {
		if rr := send("rk_live_aaaabbbb"); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rr.Code)
		}
	}
	rr := send("rk_live_aaaabbbb")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}

	// A different key has its own window.
	if rr := send("rk_live_ccccdddd"); rr.Code != http.StatusOK {
		t.Errorf("other key status = %d, want 200", rr.Code)
	}

	// Anonymous traffic uses the lower limit.
	send("")
	send("")
	if rr := send(""); rr.Code != http.StatusTooManyRequests {
		t.Errorf("anonymous status = %d, want 429", rr.Code)
	}
}

func TestMemoryRateLimitEnvelope(t *testing.T) {
	cfg := RateLimitConfig{
		Enabled:            true,
		KeyedPerWindow:     10,
		AnonymousPerWindow: 2,
		Window:             time.Minute,
	}
	// No repository: each instance counts in memory.
	handler := RequestID(RateLimit(cfg, nil, nil)(okHandler()))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
		req.RemoteAddr = "203.0.113.9:4455"
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	send()
	send()
	rr := send()
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}

	var envelope struct {
		Success bool `json:"success"`
		Error   struct {
			Code       string `json:"code"`
			RetryAfter string `json:"retryAfter"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("envelope undecodable: %v", err)
	}
	if envelope.Error.Code != "rate_limit_exceeded" {
		t.Errorf("code = %q", envelope.Error.Code)
	}
	if _, err := time.Parse(time.RFC3339, envelope.Error.RetryAfter); err != nil {
		t.Errorf("retryAfter = %q, want RFC3339 timestamp", envelope.Error.RetryAfter)
	}
}

func TestStoreRateLimitHeaders(t *testing.T) {
	repos := setupTestRepos(t)
	cfg := RateLimitConfig{
		Enabled:            true,
		KeyedPerWindow:     10,
		AnonymousPerWindow: 10,
		Window:             time.Minute,
	}
	handler := RequestID(RateLimit(cfg, repos.RateLimits, nil)(okHandler()))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	req.Header.Set(APIKeyHeader, "rk_live_aaaabbbb")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-RateLimit-Limit"); got != "10" {
		t.Errorf("X-RateLimit-Limit = %q, want 10", got)
	}
	if got := rr.Header().Get("X-RateLimit-Remaining"); got != "9" {
		t.Errorf("X-RateLimit-Remaining = %q, want 9", got)
	}
	if rr.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing")
	}
}

func TestRateLimitDisabled(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Enabled: false}, nil, nil)(okHandler())
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rr.Code)
		}
	}
}

func TestIdempotencyReplay(t *testing.T) {
	repos := setupTestRepos(t)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"jobId":"job-1"}`))
	})
	handler := RequestID(Idempotency(repos.Idempotency, repos.Logs, testLogger())(inner))

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(body))
		if key != "" {
			req.Header.Set(IdempotencyKeyHeader, key)
		}
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	first := send("retry-1", `{"url":"https://example.com"}`)
	if first.Code != http.StatusAccepted || calls != 1 {
		t.Fatalf("first: status %d calls %d", first.Code, calls)
	}
	if first.Header().Get(IdempotencyReplayHeader) != "" {
		t.Error("first response must not be marked as a replay")
	}

	second := send("retry-1", `{"url":"https://example.com"}`)
	if second.Code != http.StatusAccepted {
		t.Fatalf("replay status = %d, want 202", second.Code)
	}
	if calls != 1 {
		t.Errorf("calls = %d, handler must not run twice", calls)
	}
	if second.Header().Get(IdempotencyReplayHeader) != "true" {
		t.Error("replay header missing")
	}
	if second.Body.String() != `{"jobId":"job-1"}` {
		t.Errorf("replay body = %s", second.Body.String())
	}
}

func TestIdempotencyKeyReuseDifferentBody(t *testing.T) {
	repos := setupTestRepos(t)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write(body)
	})
	handler := RequestID(Idempotency(repos.Idempotency, repos.Logs, testLogger())(inner))

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader(body))
		req.Header.Set(IdempotencyKeyHeader, "retry-1")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	send(`{"url":"https://example.com/a"}`)

	// Same key, different body: a distinct request, executed fresh.
	second := send(`{"url":"https://example.com/b"}`)
	if second.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", second.Code)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if second.Header().Get(IdempotencyReplayHeader) != "" {
		t.Error("changed body must not be served as a replay")
	}

	// The key now belongs to the new body.
	third := send(`{"url":"https://example.com/b"}`)
	if calls != 2 {
		t.Errorf("calls = %d after replay, want 2", calls)
	}
	if third.Header().Get(IdempotencyReplayHeader) != "true" {
		t.Error("replay header missing after key takeover")
	}
	if third.Body.String() != `{"url":"https://example.com/b"}` {
		t.Errorf("replay body = %s", third.Body.String())
	}
}

func TestIdempotencyKeyTooLong(t *testing.T) {
	repos := setupTestRepos(t)
	handler := RequestID(Idempotency(repos.Idempotency, repos.Logs, testLogger())(okHandler()))

	req := httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader("{}"))
	req.Header.Set(IdempotencyKeyHeader, strings.Repeat("k", 256))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader("{}"))
	req.Header.Set(IdempotencyKeyHeader, strings.Repeat("k", 255))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for a 255-char key", rr.Code)
	}
}

func TestIdempotencyWithoutKeyPassesThrough(t *testing.T) {
	repos := setupTestRepos(t)

	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})
	handler := Idempotency(repos.Idempotency, repos.Logs, testLogger())(inner)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/extract", strings.NewReader("{}")))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}
