package engine_test

import (
	"testing"

	"questboard/internal/domain"
	"questboard/internal/engine"
)

func quest(id string, state domain.QuestState, conds ...domain.UnlockCondition) domain.Quest {
	return domain.Quest{ID: id, OrgID: "org-1", Title: id, State: state, UnlockConditions: conds}
}

func task(id string, status domain.TaskStatus) domain.Task {
	return domain.Task{ID: id, OrgID: "org-1", QuestID: "q-src", Title: id, Status: status, EstimateMinutes: 30}
}

func TestUnlockZeroConditions(t *testing.T) {
	unlocked := engine.EvaluateUnlocks([]domain.Quest{quest("q1", domain.QuestLocked)}, nil)
	if len(unlocked) != 1 || unlocked[0].ID != "q1" || unlocked[0].State != domain.QuestUnlocked {
		t.Fatalf("expected q1 unlocked, got %+v", unlocked)
	}
}

func TestUnlockTaskCompleted(t *testing.T) {
	cond := domain.UnlockCondition{Kind: domain.CondTaskCompleted, TaskID: "t1"}
	quests := []domain.Quest{quest("q1", domain.QuestLocked, cond)}

	if got := engine.EvaluateUnlocks(quests, []domain.Task{task("t1", domain.TaskInProgress)}); len(got) != 0 {
		t.Fatalf("task not done, expected no unlock, got %+v", got)
	}
	if got := engine.EvaluateUnlocks(quests, []domain.Task{task("t1", domain.TaskDone)}); len(got) != 1 {
		t.Fatalf("task done, expected unlock, got %+v", got)
	}
}

func TestUnlockQuestCompleted(t *testing.T) {
	cond := domain.UnlockCondition{Kind: domain.CondQuestCompleted, QuestID: "q0"}
	locked := quest("q1", domain.QuestLocked, cond)

	if got := engine.EvaluateUnlocks([]domain.Quest{quest("q0", domain.QuestInProgress), locked}, nil); len(got) != 0 {
		t.Fatalf("prerequisite in progress, expected no unlock, got %+v", got)
	}
	got := engine.EvaluateUnlocks([]domain.Quest{quest("q0", domain.QuestCompleted), locked}, nil)
	if len(got) != 1 || got[0].ID != "q1" {
		t.Fatalf("prerequisite completed, expected q1 unlocked, got %+v", got)
	}
}

func TestUnlockAllTasksCompleted(t *testing.T) {
	cond := domain.UnlockCondition{Kind: domain.CondAllTasksCompleted, TaskIDs: []string{"t1", "t2"}}
	quests := []domain.Quest{quest("q1", domain.QuestLocked, cond)}

	partial := []domain.Task{task("t1", domain.TaskDone), task("t2", domain.TaskTodo)}
	if got := engine.EvaluateUnlocks(quests, partial); len(got) != 0 {
		t.Fatalf("one task pending, expected no unlock, got %+v", got)
	}
	all := []domain.Task{task("t1", domain.TaskDone), task("t2", domain.TaskDone)}
	if got := engine.EvaluateUnlocks(quests, all); len(got) != 1 {
		t.Fatalf("all tasks done, expected unlock, got %+v", got)
	}
}

func TestUnlockDanglingReferences(t *testing.T) {
	quests := []domain.Quest{
		quest("q1", domain.QuestLocked, domain.UnlockCondition{Kind: domain.CondTaskCompleted, TaskID: "gone"}),
		quest("q2", domain.QuestLocked, domain.UnlockCondition{Kind: domain.CondQuestCompleted, QuestID: "gone"}),
		quest("q3", domain.QuestLocked, domain.UnlockCondition{Kind: domain.CondAllTasksCompleted, TaskIDs: []string{"gone"}}),
	}
	if got := engine.EvaluateUnlocks(quests, nil); len(got) != 0 {
		t.Fatalf("dangling references must stay locked, got %+v", got)
	}
}

func TestUnlockNeverRegresses(t *testing.T) {
	// A satisfied condition on an already-advanced quest must not touch it.
	quests := []domain.Quest{
		quest("q1", domain.QuestInProgress),
		quest("q2", domain.QuestCompleted),
		quest("q3", domain.QuestUnlocked),
	}
	if got := engine.EvaluateUnlocks(quests, nil); len(got) != 0 {
		t.Fatalf("non-locked quests must not be revisited, got %+v", got)
	}
}

func TestUnlockIdempotent(t *testing.T) {
	quests := []domain.Quest{quest("q1", domain.QuestLocked)}
	first := engine.EvaluateUnlocks(quests, nil)
	if len(first) != 1 {
		t.Fatalf("expected one unlock, got %d", len(first))
	}
	quests[0].State = first[0].State
	if second := engine.EvaluateUnlocks(quests, nil); len(second) != 0 {
		t.Fatalf("second pass must be a no-op, got %+v", second)
	}
}

func TestUnlockMultipleConditionsAllRequired(t *testing.T) {
	quests := []domain.Quest{quest("q1", domain.QuestLocked,
		domain.UnlockCondition{Kind: domain.CondTaskCompleted, TaskID: "t1"},
		domain.UnlockCondition{Kind: domain.CondTaskCompleted, TaskID: "t2"},
	)}
	if got := engine.EvaluateUnlocks(quests, []domain.Task{task("t1", domain.TaskDone), task("t2", domain.TaskTodo)}); len(got) != 0 {
		t.Fatalf("conditions are ANDed, got %+v", got)
	}
}
