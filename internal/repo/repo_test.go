package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"questboard/internal/config"
	"questboard/internal/db"
	"questboard/internal/domain"
	"questboard/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func ts(n int) string {
	return time.Date(2026, 8, 28, 8, 0, n, 0, time.UTC).Format(domain.TimeFormat)
}

func seedOrg(t *testing.T, r Repo, id string) {
	t.Helper()
	if err := r.InsertOrg(context.Background(), domain.Org{ID: id, Name: id, CreatedAt: ts(0)}); err != nil {
		t.Fatalf("insert org: %v", err)
	}
}

func TestOrgRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	org := domain.Org{
		ID: "org-1", Name: "Acme",
		SlackEnabled: true, SlackChannel: "#quests",
		CreatedAt: ts(0),
	}
	if err := r.InsertOrg(ctx, org); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetOrg(ctx, "org-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Acme" || !got.SlackEnabled || got.SlackChannel != "#quests" || got.EmailEnabled {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	if _, err := r.GetOrg(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	single, err := r.SingleOrg(ctx)
	if err != nil || single.ID != "org-1" {
		t.Fatalf("single org: %v %+v", err, single)
	}
}

func TestOrgConfigUpsert(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedOrg(t, r, "org-1")

	cfg := config.Default("org-1")
	if err := r.UpsertOrgConfig(ctx, "org-1", cfg); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	cfg.Questmaster.StaleHours = 12
	if err := r.UpsertOrgConfig(ctx, "org-1", cfg); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := r.GetOrgConfig(ctx, "org-1")
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if got.StaleHours() != 12 {
		t.Fatalf("expected stale_hours 12, got %d", got.StaleHours())
	}
}

func TestQuestRoundTripWithConditions(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedOrg(t, r, "org-1")

	q := domain.Quest{
		ID: "q1", OrgID: "org-1", Title: "Launch",
		UnlockConditions: []domain.UnlockCondition{
			{Kind: domain.CondTaskCompleted, TaskID: "t0"},
			{Kind: domain.CondAllTasksCompleted, TaskIDs: []string{"a", "b"}},
		},
		State: domain.QuestLocked, CreatedAt: ts(1), UpdatedAt: ts(1),
	}
	if err := r.InsertQuest(ctx, q); err != nil {
		t.Fatalf("insert quest: %v", err)
	}
	if err := r.InsertTask(ctx, domain.Task{
		ID: "t1", OrgID: "org-1", QuestID: "q1", Title: "Ship",
		Status: domain.TaskTodo, EstimateMinutes: 30, CreatedAt: ts(2), UpdatedAt: ts(2),
	}); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	got, err := r.GetQuest(ctx, "q1")
	if err != nil {
		t.Fatalf("get quest: %v", err)
	}
	if len(got.UnlockConditions) != 2 || got.UnlockConditions[0].TaskID != "t0" {
		t.Fatalf("conditions mismatch: %+v", got.UnlockConditions)
	}
	if len(got.TaskIDs) != 1 || got.TaskIDs[0] != "t1" {
		t.Fatalf("expected task ids [t1], got %v", got.TaskIDs)
	}

	got.State = domain.QuestUnlocked
	if err := r.UpdateQuest(ctx, nil, got); err != nil {
		t.Fatalf("update quest: %v", err)
	}
	again, err := r.GetQuest(ctx, "q1")
	if err != nil || again.State != domain.QuestUnlocked {
		t.Fatalf("state not persisted: %v %+v", err, again)
	}
}

func TestTaskFilters(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedOrg(t, r, "org-1")
	if err := r.InsertQuest(ctx, domain.Quest{ID: "q1", OrgID: "org-1", Title: "Q", State: domain.QuestUnlocked, CreatedAt: ts(0), UpdatedAt: ts(0)}); err != nil {
		t.Fatalf("insert quest: %v", err)
	}
	ana := "m-ana"
	tasks := []domain.Task{
		{ID: "t1", OrgID: "org-1", QuestID: "q1", Title: "a", Status: domain.TaskTodo, EstimateMinutes: 10, CreatedAt: ts(1), UpdatedAt: ts(1)},
		{ID: "t2", OrgID: "org-1", QuestID: "q1", Title: "b", Status: domain.TaskDone, AssignedMemberID: &ana, EstimateMinutes: 10, CreatedAt: ts(2), UpdatedAt: ts(2)},
		{ID: "t3", OrgID: "org-1", QuestID: "q1", Title: "c", Status: domain.TaskTodo, AssignedMemberID: &ana, EstimateMinutes: 10, CreatedAt: ts(3), UpdatedAt: ts(3)},
	}
	for _, task := range tasks {
		if err := r.InsertTask(ctx, task); err != nil {
			t.Fatalf("insert %s: %v", task.ID, err)
		}
	}

	byStatus, err := r.ListTasks(ctx, TaskFilters{OrgID: "org-1", Status: domain.TaskTodo})
	if err != nil || len(byStatus) != 2 {
		t.Fatalf("status filter: %v %d", err, len(byStatus))
	}
	byAssignee, err := r.ListTasks(ctx, TaskFilters{OrgID: "org-1", AssigneeID: "m-ana"})
	if err != nil || len(byAssignee) != 2 {
		t.Fatalf("assignee filter: %v %d", err, len(byAssignee))
	}
	unassigned, err := r.ListTasks(ctx, TaskFilters{OrgID: "org-1", Unassigned: true})
	if err != nil || len(unassigned) != 1 || unassigned[0].ID != "t1" {
		t.Fatalf("unassigned filter: %v %+v", err, unassigned)
	}

	counts, err := r.CountTasksByStatus(ctx, "org-1")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts["todo"] != 2 || counts["done"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	// Stable listing order follows creation time.
	all, err := r.ListTasks(ctx, TaskFilters{OrgID: "org-1"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if all[0].ID != "t1" || all[2].ID != "t3" {
		t.Fatalf("unexpected order %v", []string{all[0].ID, all[1].ID, all[2].ID})
	}
}

func TestMemberProfilePersistence(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedOrg(t, r, "org-1")

	m := domain.Member{
		ID: "m1", OrgID: "org-1", Email: "ana@example.com",
		Profile: &domain.GeniusProfile{
			Strengths:    []domain.GeniusPhase{domain.PhaseTenacity, domain.PhaseEnablement},
			Competencies: []domain.GeniusPhase{domain.PhaseWonder, domain.PhaseInvention},
			Frustrations: []domain.GeniusPhase{domain.PhaseDiscernment, domain.PhaseGalvanizing},
		},
		DailyCapacityMinutes: 480,
		CreatedAt:            ts(0),
	}
	if err := r.InsertMember(ctx, m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetMember(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Profile == nil || got.Profile.Strengths[0] != domain.PhaseTenacity {
		t.Fatalf("profile mismatch: %+v", got.Profile)
	}

	got.Profile = nil
	got.DailyCapacityMinutes = 240
	if err := r.UpdateMember(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	again, err := r.GetMember(ctx, "m1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Profile != nil || again.DailyCapacityMinutes != 240 {
		t.Fatalf("update not persisted: %+v", again)
	}
}

func TestDeckUpsertOverwrites(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedOrg(t, r, "org-1")
	if err := r.InsertMember(ctx, domain.Member{ID: "m1", OrgID: "org-1", Email: "a@b.c", DailyCapacityMinutes: 480, CreatedAt: ts(0)}); err != nil {
		t.Fatalf("insert member: %v", err)
	}

	deck := domain.MemberQuestDeck{
		ID: domain.DeckID("m1", "2026-08-28"), OrgID: "org-1", MemberID: "m1", Date: "2026-08-28",
		Entries:      []domain.DeckEntry{{QuestID: "q1", TaskIDs: []string{"t1"}, TotalEstimatedMinutes: 60}},
		TotalMinutes: 60, GeneratedAt: ts(1),
	}
	if err := r.UpsertDeck(ctx, deck); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	deck.Entries = []domain.DeckEntry{{QuestID: "q1", TaskIDs: []string{"t1", "t2"}, TotalEstimatedMinutes: 90}}
	deck.TotalMinutes = 90
	if err := r.UpsertDeck(ctx, deck); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	n, err := r.CountDecks(ctx, "m1", "2026-08-28")
	if err != nil || n != 1 {
		t.Fatalf("expected one deck, got %d (%v)", n, err)
	}
	got, err := r.GetDeck(ctx, "m1", "2026-08-28")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.TotalMinutes != 90 || len(got.Entries[0].TaskIDs) != 2 {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestSummariesNewestFirst(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	seedOrg(t, r, "org-1")

	for i := 0; i < 3; i++ {
		s := domain.JobRunSummary{
			ID:         domain.SummaryID("job", "org-1", time.Date(2026, 8, 28, 9, i, 0, 0, time.UTC)),
			OrgID:      "org-1",
			JobID:      "job",
			StartedAt:  ts(i),
			FinishedAt: ts(i + 1),
			Status:     "success",
		}
		if err := r.InsertSummary(ctx, s); err != nil {
			t.Fatalf("insert summary %d: %v", i, err)
		}
	}
	got, err := r.ListSummaries(ctx, "org-1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("limit not applied: %d", len(got))
	}
	if got[0].StartedAt < got[1].StartedAt {
		t.Fatalf("expected newest first, got %s then %s", got[0].StartedAt, got[1].StartedAt)
	}
}

func TestAPIKeyLookupByHash(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	raw := "qb_deadbeef"
	key := domain.APIKey{
		ID: "key-1", ActorID: "svc-runner", Name: "scheduler",
		KeyHash: HashAPIKey(raw), CreatedAt: ts(0),
	}
	if err := r.InsertAPIKey(ctx, key); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey(raw))
	if err != nil || got.ActorID != "svc-runner" {
		t.Fatalf("lookup: %v %+v", err, got)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("qb_wrong")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey(raw)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
