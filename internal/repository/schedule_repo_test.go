package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/7and1/robotscraping/internal/models"
)

func insertTestSchedule(t *testing.T, repos *Repositories, id string, nextRun time.Time) {
	t.Helper()
	now := time.Now().UTC()
	s := &models.Schedule{
		ID:         id,
		APIKeyID:   "key_1",
		Cron:       "*/5 * * * *",
		URL:        "https://example.com/feed",
		ParamsJSON: `{"fields":["headline"]}`,
		IsActive:   true,
		NextRunAt:  nextRun,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repos.Schedules.Create(context.Background(), s); err != nil {
		t.Fatalf("failed to insert test schedule: %v", err)
	}
}

func TestScheduleRepository_ListDue(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertTestSchedule(t, repos, "sched_due", now.Add(-time.Minute))
	insertTestSchedule(t, repos, "sched_future", now.Add(time.Hour))

	due, err := repos.Schedules.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != "sched_due" {
		t.Fatalf("ListDue() = %v, want [sched_due]", due)
	}
}

func TestScheduleRepository_ListDueSkipsInactive(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	insertTestSchedule(t, repos, "sched_off", now.Add(-time.Minute))

	s, _ := repos.Schedules.GetByID(ctx, "sched_off")
	s.IsActive = false
	if err := repos.Schedules.Update(ctx, s); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	due, err := repos.Schedules.ListDue(ctx, now, 10)
	if err != nil {
		t.Fatalf("ListDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("len(due) = %d, want 0", len(due))
	}
}

func TestScheduleRepository_AdvanceNextRunCAS(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	from := now.Add(-time.Minute)
	insertTestSchedule(t, repos, "sched_cas", from)

	next := now.Add(5 * time.Minute)
	advanced, err := repos.Schedules.AdvanceNextRun(ctx, "sched_cas", from, next, now)
	if err != nil {
		t.Fatalf("AdvanceNextRun() error = %v", err)
	}
	if !advanced {
		t.Fatal("first advance should succeed")
	}

	// A second instance observing the same stale next_run_at must lose the race
	advanced, err = repos.Schedules.AdvanceNextRun(ctx, "sched_cas", from, next, now)
	if err != nil {
		t.Fatalf("AdvanceNextRun() error = %v", err)
	}
	if advanced {
		t.Error("second advance with stale expectation should fail")
	}

	s, _ := repos.Schedules.GetByID(ctx, "sched_cas")
	if !s.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want %v", s.NextRunAt, next)
	}
	if s.LastRunAt == nil {
		t.Error("LastRunAt should be set after advance")
	}
}

func TestScheduleRepository_Delete(t *testing.T) {
	repos := setupTestRepos(t)
	ctx := context.Background()

	insertTestSchedule(t, repos, "sched_del", time.Now().UTC())
	if err := repos.Schedules.Delete(ctx, "sched_del"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ := repos.Schedules.GetByID(ctx, "sched_del")
	if got != nil {
		t.Error("schedule should be gone after delete")
	}

	if err := repos.Schedules.Delete(ctx, uuid.NewString()); err == nil {
		t.Error("expected error deleting unknown schedule")
	}
}
