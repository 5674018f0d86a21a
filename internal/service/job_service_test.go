package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/queue"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/storage"
)

func newTestJobService(t *testing.T) (*JobService, *repository.Repositories, *queue.MemoryQueue, *storage.MemoryStore) {
	t.Helper()
	repos := setupTestRepos(t)
	q := queue.NewMemoryQueue()
	t.Cleanup(func() { _ = q.Close() })
	store := storage.NewMemoryStore()
	svc := NewJobService(newTestConfig(), repos, store, q, nil, testLogger())
	return svc, repos, q, store
}

func TestJobCreate(t *testing.T) {
	svc, repos, q, _ := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 3)

	job, err := svc.Create(ctx, "key1", extractParams(), "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("Status = %s, want queued", job.Status)
	}

	msg, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if msg.JobID != job.ID {
		t.Errorf("queued JobID = %s, want %s", msg.JobID, job.ID)
	}

	key, err := repos.APIKeys.GetByID(ctx, "key1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if key.RemainingCredits != 2 {
		t.Errorf("RemainingCredits = %d, want 2", key.RemainingCredits)
	}
}

func TestJobCreateInsufficientCredits(t *testing.T) {
	svc, repos, _, _ := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 0)

	_, err := svc.Create(ctx, "key1", extractParams(), "", "")
	if !errors.Is(err, repository.ErrInsufficientCredits) {
		t.Fatalf("Create() error = %v, want ErrInsufficientCredits", err)
	}

	jobs, err := repos.Jobs.GetByAPIKeyID(ctx, "key1", 10, 0)
	if err != nil {
		t.Fatalf("GetByAPIKeyID() error = %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("len(jobs) = %d, want 0", len(jobs))
	}
}

func TestJobCreateRejectsPlainHTTPWebhook(t *testing.T) {
	svc, repos, _, _ := newTestJobService(t)
	insertTestAPIKey(t, repos, "key1", 3)

	_, err := svc.Create(context.Background(), "key1", extractParams(), "http://example.com/hook", "")
	if err == nil {
		t.Fatal("plain http webhook must be rejected")
	}
}

func TestJobCreateBatch(t *testing.T) {
	svc, repos, q, _ := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 5)

	items := []*models.ExtractParams{
		{URL: "https://example.com/a", Fields: []string{"title"}},
		{URL: "https://example.com/b", Fields: []string{"title"}},
		{URL: "https://example.com/c", Fields: []string{"title"}},
	}
	jobs, err := svc.CreateBatch(ctx, "key1", items, "", "")
	if err != nil {
		t.Fatalf("CreateBatch() error = %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("len(jobs) = %d, want 3", len(jobs))
	}

	key, err := repos.APIKeys.GetByID(ctx, "key1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if key.RemainingCredits != 2 {
		t.Errorf("RemainingCredits = %d, want 2 after batch of 3", key.RemainingCredits)
	}

	for range jobs {
		if _, err := q.Dequeue(ctx); err != nil {
			t.Fatalf("Dequeue() error = %v", err)
		}
	}

	if n, err := repos.Logs.CountEvents(ctx, "key1", models.EventBatchCreated); err != nil || n != 1 {
		t.Errorf("batch_created events = %d (err %v), want 1", n, err)
	}
}

func TestJobCreateBatchInsufficientCreditsChargesNothing(t *testing.T) {
	svc, repos, _, _ := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 2)

	items := []*models.ExtractParams{
		{URL: "https://example.com/a", Fields: []string{"title"}},
		{URL: "https://example.com/b", Fields: []string{"title"}},
		{URL: "https://example.com/c", Fields: []string{"title"}},
	}
	_, err := svc.CreateBatch(ctx, "key1", items, "", "")
	if !errors.Is(err, repository.ErrInsufficientCredits) {
		t.Fatalf("CreateBatch() error = %v, want ErrInsufficientCredits", err)
	}

	key, err := repos.APIKeys.GetByID(ctx, "key1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if key.RemainingCredits != 2 {
		t.Errorf("RemainingCredits = %d, want untouched 2", key.RemainingCredits)
	}
}

func TestJobGetOwnership(t *testing.T) {
	svc, repos, _, _ := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 3)
	insertTestAPIKey(t, repos, "key2", 3)

	job, err := svc.Create(ctx, "key1", extractParams(), "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := svc.Get(ctx, "key1", job.ID); err != nil {
		t.Errorf("owner Get() error = %v", err)
	}
	if _, err := svc.Get(ctx, "key2", job.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign Get() error = %v, want ErrNotFound", err)
	}
	if _, err := svc.Get(ctx, "key1", "no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing Get() error = %v, want ErrNotFound", err)
	}
}

func TestJobResult(t *testing.T) {
	svc, repos, _, store := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 3)

	job, err := svc.Create(ctx, "key1", extractParams(), "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, _, err := svc.Result(ctx, "key1", job.ID); !errors.Is(err, ErrNotReady) {
		t.Fatalf("queued Result() error = %v, want ErrNotReady", err)
	}

	doc, _ := json.Marshal(ResultDocument{Data: map[string]any{"title": "Widget"}})
	resultPath := storage.ResultKey(job.ID)
	if err := store.Put(ctx, resultPath, doc, "application/json"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if _, err := repos.Jobs.MarkProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkProcessing() error = %v", err)
	}
	if err := repos.Jobs.MarkCompleted(ctx, job.ID, resultPath, 100, 2000); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	got, blob, err := svc.Result(ctx, "key1", job.ID)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Errorf("Status = %s, want completed", got.Status)
	}
	var decoded ResultDocument
	if err := json.Unmarshal(blob, &decoded); err != nil {
		t.Fatalf("result blob undecodable: %v", err)
	}
	if decoded.Data["title"] != "Widget" {
		t.Errorf("Data = %v", decoded.Data)
	}
}

func TestJobResultFailedJobHasNoDocument(t *testing.T) {
	svc, repos, _, _ := newTestJobService(t)
	ctx := context.Background()
	insertTestAPIKey(t, repos, "key1", 3)

	job, err := svc.Create(ctx, "key1", extractParams(), "", "")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repos.Jobs.MarkFailed(ctx, job.ID, "render failed", false); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}

	got, blob, err := svc.Result(ctx, "key1", job.ID)
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if got.Status != models.JobStatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if blob != nil {
		t.Error("failed job must not return a result document")
	}
}
