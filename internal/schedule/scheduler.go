package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/models"
	"github.com/7and1/robotscraping/internal/queue"
	"github.com/7and1/robotscraping/internal/repository"
)

// Notifier is told about jobs that fail before they ever reach a worker,
// so their webhooks still fire.
type Notifier interface {
	NotifyJob(ctx context.Context, job *models.Job)
}

// Scheduler periodically turns due schedules into queued jobs. Multiple
// instances may tick concurrently; the compare-and-swap on next_run_at
// guarantees each firing produces exactly one job.
type Scheduler struct {
	repos     *repository.Repositories
	queue     queue.Queue
	notifier  Notifier
	interval  time.Duration
	batchSize int
	logger    *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler creates a scheduler. notifier may be nil.
func NewScheduler(repos *repository.Repositories, q queue.Queue, notifier Notifier, interval time.Duration, batchSize int, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		repos:     repos,
		queue:     q,
		notifier:  notifier,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
		stop:      make(chan struct{}),
	}
}

// Start launches the tick loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("scheduler started", "interval", s.interval)
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

// Stop signals the loop and waits for it to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunOnce processes one batch of due schedules. Exposed for the tick loop
// and for callers that drive the scheduler manually.
func (s *Scheduler) RunOnce(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.repos.Schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("failed to list due schedules", "error", err)
		return
	}

	for _, sched := range due {
		if err := s.fire(ctx, sched, now); err != nil {
			s.logger.Error("schedule firing failed", "schedule_id", sched.ID, "error", err)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, sched *models.Schedule, now time.Time) error {
	// Advance from the previous next_run_at, not the tick instant: a late
	// tick then leaves the schedule due again and every missed interval
	// fires exactly once.
	next, err := NextAfter(sched.Cron, sched.NextRunAt)
	if err != nil {
		// A schedule whose expression no longer parses can never fire
		// again. Deactivate it instead of retrying every tick.
		s.logger.Warn("deactivating schedule with invalid cron", "schedule_id", sched.ID, "cron", sched.Cron)
		sched.IsActive = false
		return s.repos.Schedules.Update(ctx, sched)
	}

	won, err := s.repos.Schedules.AdvanceNextRun(ctx, sched.ID, sched.NextRunAt, next, now)
	if err != nil {
		return err
	}
	if !won {
		// Another instance claimed this firing.
		return nil
	}

	job := &models.Job{
		ID:            uuid.NewString(),
		APIKeyID:      sched.APIKeyID,
		ScheduleID:    sched.ID,
		Status:        models.JobStatusQueued,
		URL:           sched.URL,
		ParamsJSON:    sched.ParamsJSON,
		WebhookURL:    sched.WebhookURL,
		WebhookSecret: sched.WebhookSecret,
	}
	if err := s.repos.Jobs.Create(ctx, job); err != nil {
		return err
	}

	if sched.APIKeyID != "" {
		if _, err := s.repos.APIKeys.Consume(ctx, sched.APIKeyID, 1); err != nil {
			// A key that cannot pay, or that no longer exists, fails the
			// job terminally instead of retrying every tick.
			if errors.Is(err, repository.ErrInsufficientCredits) ||
				errors.Is(err, repository.ErrKeyNotFound) ||
				errors.Is(err, repository.ErrKeyInactive) {
				if markErr := s.repos.Jobs.MarkFailed(ctx, job.ID, err.Error(), false); markErr != nil {
					return markErr
				}
				job.Status = models.JobStatusFailed
				job.ErrorMsg = err.Error()
				if s.notifier != nil {
					s.notifier.NotifyJob(ctx, job)
				}
				s.logger.Warn("scheduled job failed", "schedule_id", sched.ID, "job_id", job.ID, "reason", err)
				return nil
			}
			return err
		}
	}

	if err := s.queue.Enqueue(ctx, queue.Message{JobID: job.ID}); err != nil {
		return err
	}
	s.logger.Info("schedule fired", "schedule_id", sched.ID, "job_id", job.ID, "next_run_at", next)
	return nil
}
