package engine_test

import (
	"testing"
	"time"

	"questboard/internal/domain"
	"questboard/internal/engine"
)

var deckNow = time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC)

func assignedTask(id, questID, memberID string, minutes int, priority *int) domain.Task {
	m := memberID
	return domain.Task{
		ID: id, OrgID: "org-1", QuestID: questID, Title: id,
		Status: domain.TaskTodo, AssignedMemberID: &m,
		EstimateMinutes: minutes, Priority: priority,
	}
}

func intPtr(v int) *int { return &v }

func TestBuildDeckGreedySkipAndContinue(t *testing.T) {
	m := member("m1", 120, nil)
	quests := []domain.Quest{quest("q1", domain.QuestUnlocked)}
	tasks := []domain.Task{
		assignedTask("t1", "q1", "m1", 90, nil),
		assignedTask("t2", "q1", "m1", 60, nil), // would overflow, skipped
		assignedTask("t3", "q1", "m1", 30, nil), // still fits
	}
	deck, over := engine.BuildDeck(m, quests, tasks, "2026-08-28", deckNow)
	if !over {
		t.Fatalf("180 eligible minutes over 120 capacity must flag overallocation")
	}
	if len(deck.Entries) != 1 {
		t.Fatalf("expected one quest entry, got %+v", deck.Entries)
	}
	got := deck.Entries[0].TaskIDs
	if len(got) != 2 || got[0] != "t1" || got[1] != "t3" {
		t.Fatalf("expected [t1 t3], got %v", got)
	}
	if deck.TotalMinutes != 120 {
		t.Fatalf("expected 120 total minutes, got %d", deck.TotalMinutes)
	}
}

func TestBuildDeckExcludesLockedQuestsAndDoneTasks(t *testing.T) {
	m := member("m1", 480, nil)
	quests := []domain.Quest{
		quest("q-locked", domain.QuestLocked),
		quest("q-open", domain.QuestInProgress),
		quest("q-done", domain.QuestCompleted),
	}
	doneTask := assignedTask("t-done", "q-open", "m1", 30, nil)
	doneTask.Status = domain.TaskDone
	tasks := []domain.Task{
		assignedTask("t-locked", "q-locked", "m1", 30, nil),
		assignedTask("t-open", "q-open", "m1", 30, nil),
		assignedTask("t-completed-quest", "q-done", "m1", 30, nil),
		doneTask,
	}
	deck, over := engine.BuildDeck(m, quests, tasks, "2026-08-28", deckNow)
	if over {
		t.Fatalf("30 eligible minutes is within capacity")
	}
	if len(deck.Entries) != 1 || deck.Entries[0].QuestID != "q-open" {
		t.Fatalf("only the in-progress quest qualifies, got %+v", deck.Entries)
	}
	if len(deck.Entries[0].TaskIDs) != 1 || deck.Entries[0].TaskIDs[0] != "t-open" {
		t.Fatalf("expected only t-open, got %v", deck.Entries[0].TaskIDs)
	}
}

func TestBuildDeckPriorityOrderWithinQuest(t *testing.T) {
	m := member("m1", 480, nil)
	quests := []domain.Quest{quest("q1", domain.QuestUnlocked)}
	tasks := []domain.Task{
		assignedTask("t-none", "q1", "m1", 30, nil),
		assignedTask("t-low", "q1", "m1", 30, intPtr(5)),
		assignedTask("t-high", "q1", "m1", 30, intPtr(1)),
	}
	deck, _ := engine.BuildDeck(m, quests, tasks, "2026-08-28", deckNow)
	got := deck.Entries[0].TaskIDs
	want := []string{"t-high", "t-low", "t-none"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBuildDeckIgnoresOtherMembersTasks(t *testing.T) {
	m := member("m1", 480, nil)
	quests := []domain.Quest{quest("q1", domain.QuestUnlocked)}
	unassigned := domain.Task{ID: "t-free", OrgID: "org-1", QuestID: "q1", Status: domain.TaskTodo, EstimateMinutes: 30}
	tasks := []domain.Task{
		assignedTask("t-mine", "q1", "m1", 30, nil),
		assignedTask("t-theirs", "q1", "m2", 30, nil),
		unassigned,
	}
	deck, _ := engine.BuildDeck(m, quests, tasks, "2026-08-28", deckNow)
	if deck.TotalMinutes != 30 || deck.Entries[0].TaskIDs[0] != "t-mine" {
		t.Fatalf("deck must hold only the member's tasks, got %+v", deck)
	}
}

func TestBuildDeckEmptyAndDeterministicID(t *testing.T) {
	m := member("m1", 480, nil)
	deck, over := engine.BuildDeck(m, nil, nil, "2026-08-28", deckNow)
	if over || len(deck.Entries) != 0 || deck.TotalMinutes != 0 {
		t.Fatalf("expected empty deck, got %+v", deck)
	}
	if deck.ID != "deck-m1-2026-08-28" {
		t.Fatalf("unexpected deck id %s", deck.ID)
	}
	if deck.GeneratedAt != deckNow.Format(domain.TimeFormat) {
		t.Fatalf("unexpected generated_at %s", deck.GeneratedAt)
	}
}

func TestBuildDeckQuestOrderFollowsSnapshot(t *testing.T) {
	m := member("m1", 480, nil)
	quests := []domain.Quest{
		quest("q-first", domain.QuestUnlocked),
		quest("q-second", domain.QuestUnlocked),
	}
	tasks := []domain.Task{
		assignedTask("t-b", "q-second", "m1", 30, nil),
		assignedTask("t-a", "q-first", "m1", 30, nil),
	}
	deck, _ := engine.BuildDeck(m, quests, tasks, "2026-08-28", deckNow)
	if len(deck.Entries) != 2 || deck.Entries[0].QuestID != "q-first" || deck.Entries[1].QuestID != "q-second" {
		t.Fatalf("entries must follow quest snapshot order, got %+v", deck.Entries)
	}
}
