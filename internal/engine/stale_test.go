package engine_test

import (
	"testing"
	"time"

	"questboard/internal/domain"
	"questboard/internal/engine"
)

func agedTask(id string, status domain.TaskStatus, updated time.Time, blockers ...string) domain.Task {
	return domain.Task{
		ID: id, OrgID: "org-1", QuestID: "q1", Title: id,
		Status: status, Blockers: blockers,
		UpdatedAt: updated.Format(domain.TimeFormat),
	}
}

func TestStaleStrictBoundary(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	threshold := 48 * time.Hour

	exact := agedTask("t-exact", domain.TaskTodo, now.Add(-threshold))
	over := agedTask("t-over", domain.TaskTodo, now.Add(-threshold-time.Millisecond))

	rep := engine.DetectStaleAndBlocked([]domain.Task{exact, over}, now, threshold)
	if len(rep.Stale) != 1 || rep.Stale[0].ID != "t-over" {
		t.Fatalf("exactly-at-threshold is not stale, one ms past is, got %+v", rep.Stale)
	}
}

func TestStaleSkipsDoneAndBlockedStatuses(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	old := now.Add(-100 * time.Hour)
	tasks := []domain.Task{
		agedTask("t-done", domain.TaskDone, old),
		agedTask("t-blocked", domain.TaskBlocked, old),
		agedTask("t-todo", domain.TaskTodo, old),
		agedTask("t-wip", domain.TaskInProgress, old),
	}
	rep := engine.DetectStaleAndBlocked(tasks, now, 48*time.Hour)
	if len(rep.Stale) != 2 {
		t.Fatalf("only todo and in-progress can go stale, got %+v", rep.Stale)
	}
}

func TestBlockedDetection(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		agedTask("t-fresh-blocked", domain.TaskTodo, now, "waiting on vendor"),
		agedTask("t-done-blocked", domain.TaskDone, now, "irrelevant"),
		agedTask("t-clear", domain.TaskTodo, now),
	}
	rep := engine.DetectStaleAndBlocked(tasks, now, 48*time.Hour)
	if len(rep.Blocked) != 1 || rep.Blocked[0].ID != "t-fresh-blocked" {
		t.Fatalf("blockers on a not-done task flag it regardless of age, got %+v", rep.Blocked)
	}
}

func TestStaleAndBlockedCanOverlap(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	both := agedTask("t-both", domain.TaskInProgress, now.Add(-72*time.Hour), "blocked on review")
	rep := engine.DetectStaleAndBlocked([]domain.Task{both}, now, 48*time.Hour)
	if len(rep.Stale) != 1 || len(rep.Blocked) != 1 {
		t.Fatalf("same task can be both stale and blocked, got %+v", rep)
	}
}

func TestStaleUnparseableTimestampIgnored(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	bad := domain.Task{ID: "t-bad", Status: domain.TaskTodo, UpdatedAt: "not-a-time"}
	rep := engine.DetectStaleAndBlocked([]domain.Task{bad}, now, 48*time.Hour)
	if len(rep.Stale) != 0 {
		t.Fatalf("unparseable updated_at must not flag, got %+v", rep.Stale)
	}
}
