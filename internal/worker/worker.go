// Package worker consumes the job queue and runs the extraction pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/7and1/robotscraping/internal/apperr"
	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/queue"
	"github.com/7and1/robotscraping/internal/repository"
	"github.com/7and1/robotscraping/internal/service"
	"github.com/7and1/robotscraping/internal/storage"
)

// Worker processes background extraction jobs.
type Worker struct {
	repos         *repository.Repositories
	queue         queue.Queue
	store         storage.Store
	extractionSvc *service.ExtractionService
	webhookSvc    *service.WebhookService
	concurrency   int
	inFlight      atomic.Int64
	stop          chan struct{}
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	logger        *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	Concurrency int
}

// New creates a new worker.
func New(
	repos *repository.Repositories,
	q queue.Queue,
	store storage.Store,
	extractionSvc *service.ExtractionService,
	webhookSvc *service.WebhookService,
	cfg Config,
	logger *slog.Logger,
) *Worker {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		repos:         repos,
		queue:         q,
		store:         store,
		extractionSvc: extractionSvc,
		webhookSvc:    webhookSvc,
		concurrency:   cfg.Concurrency,
		stop:          make(chan struct{}),
		logger:        logger.With("component", "worker"),
	}
}

// Start begins consuming jobs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency)

	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// Stop gracefully stops the worker, waiting for in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping")
	close(w.stop)
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("stopped")
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("failed to dequeue", "worker_id", workerID, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if msg == nil {
			continue
		}

		w.ProcessJob(ctx, msg.JobID)
	}
}

// Busy reports whether any job is currently being processed.
func (w *Worker) Busy() bool {
	return w.inFlight.Load() > 0
}

// ProcessJob claims and runs one job. Messages for jobs another worker
// already claimed are dropped silently.
func (w *Worker) ProcessJob(ctx context.Context, jobID string) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	claimed, err := w.repos.Jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		w.logger.Error("failed to claim job", "job_id", jobID, "error", err)
		return
	}
	if !claimed {
		return
	}

	job, err := w.repos.Jobs.GetByID(ctx, jobID)
	if err != nil {
		w.logger.Error("failed to load claimed job", "job_id", jobID, "error", err)
		return
	}

	w.logger.Info("processing job", "job_id", job.ID, "url", job.URL)
	start := time.Now()

	var params models.ExtractParams
	if err := json.Unmarshal([]byte(job.ParamsJSON), &params); err != nil {
		w.failJob(ctx, job, "invalid job params: "+err.Error(), false)
		return
	}

	outcome, err := w.extractionSvc.Extract(ctx, job.APIKeyID, &params)
	if err != nil {
		if errors.Is(err, service.ErrBlocked) {
			w.failJob(ctx, job, err.Error(), true)
			return
		}
		w.failJob(ctx, job, err.Error(), false)
		return
	}

	blob, err := json.Marshal(outcome.Document)
	if err != nil {
		w.failJob(ctx, job, "failed to encode result: "+err.Error(), false)
		return
	}

	// The result blob must exist before the job reports completed, or a
	// client could see a completed job with no readable result.
	resultPath := storage.ResultKey(job.ID)
	if err := w.store.Put(ctx, resultPath, blob, "application/json"); err != nil {
		w.failJob(ctx, job, "failed to store result: "+err.Error(), false)
		return
	}

	latencyMs := int(time.Since(start).Milliseconds())
	if err := w.repos.Jobs.MarkCompleted(ctx, job.ID, resultPath, outcome.Document.Meta.TokenUsage, latencyMs); err != nil {
		w.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
		return
	}

	job.Status = models.JobStatusCompleted
	job.ResultPath = resultPath
	job.TokenUsage = outcome.Document.Meta.TokenUsage
	job.LatencyMs = latencyMs
	w.webhookSvc.NotifyJob(ctx, job)

	w.logger.Info("completed job", "job_id", job.ID, "latency_ms", latencyMs, "cache_hit", outcome.CacheHit)
}

func (w *Worker) failJob(ctx context.Context, job *models.Job, errMsg string, blocked bool) {
	// The stored message is served back to clients verbatim, so scrub
	// paths and credentials before it leaves the worker.
	errMsg = apperr.Redact(errMsg)
	if err := w.repos.Jobs.MarkFailed(ctx, job.ID, errMsg, blocked); err != nil {
		w.logger.Error("failed to mark job failed", "job_id", job.ID, "error", err)
		return
	}

	job.Status = models.JobStatusFailed
	if blocked {
		job.Status = models.JobStatusBlocked
		job.Blocked = true
	}
	job.ErrorMsg = errMsg
	w.webhookSvc.NotifyJob(ctx, job)

	w.logger.Error("job failed", "job_id", job.ID, "blocked", blocked, "error", errMsg)
}
