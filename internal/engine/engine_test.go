package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"questboard/internal/config"
	"questboard/internal/db"
	"questboard/internal/domain"
	"questboard/internal/engine"
	"questboard/internal/migrate"
	"questboard/internal/notify"
	"questboard/internal/repo"
)

var runTime = time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)

const runDate = "2026-08-28"

type fakeNotifier struct {
	slack []string
	email []string
}

func (f *fakeNotifier) SendSlackMessage(ctx context.Context, channel, text string) bool {
	f.slack = append(f.slack, text)
	return true
}

func (f *fakeNotifier) SendEmail(ctx context.Context, to, subject, text string) notify.EmailResult {
	f.email = append(f.email, to)
	return notify.EmailResult{Sent: true, To: to}
}

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Notif  *fakeNotifier
}

func newTestEnv(t *testing.T, org domain.Org) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	notif := &fakeNotifier{}
	cfg := config.Default(org.ID)
	eng := engine.New(conn, cfg, notif)
	eng.Now = func() time.Time { return runTime }
	ctx := context.Background()
	org.CreatedAt = seedTime(0)
	if err := eng.Repo.InsertOrg(ctx, org); err != nil {
		t.Fatalf("seed org: %v", err)
	}
	if err := eng.Repo.UpsertOrgConfig(ctx, org.ID, cfg); err != nil {
		t.Fatalf("seed config: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Notif: notif}
}

// seedTime yields distinct, ordered created_at values.
func seedTime(n int) string {
	return runTime.Add(-24*time.Hour + time.Duration(n)*time.Minute).Format(domain.TimeFormat)
}

func seedMember(t *testing.T, env testEnv, n int, id string, capacity int, p *domain.GeniusProfile) {
	t.Helper()
	m := domain.Member{
		ID: id, OrgID: "org-1", Email: id + "@example.com", Name: id,
		Profile: p, DailyCapacityMinutes: capacity, CreatedAt: seedTime(n),
	}
	if err := env.Engine.Repo.InsertMember(env.Ctx, m); err != nil {
		t.Fatalf("seed member %s: %v", id, err)
	}
}

func seedQuest(t *testing.T, env testEnv, n int, q domain.Quest) {
	t.Helper()
	q.OrgID = "org-1"
	q.CreatedAt = seedTime(n)
	q.UpdatedAt = q.CreatedAt
	if q.Title == "" {
		q.Title = q.ID
	}
	if err := env.Engine.Repo.InsertQuest(env.Ctx, q); err != nil {
		t.Fatalf("seed quest %s: %v", q.ID, err)
	}
}

func seedTask(t *testing.T, env testEnv, n int, task domain.Task) {
	t.Helper()
	task.OrgID = "org-1"
	task.CreatedAt = seedTime(n)
	if task.UpdatedAt == "" {
		task.UpdatedAt = task.CreatedAt
	}
	if task.Title == "" {
		task.Title = task.ID
	}
	if task.Status == "" {
		task.Status = domain.TaskTodo
	}
	if err := env.Engine.Repo.InsertTask(env.Ctx, task); err != nil {
		t.Fatalf("seed task %s: %v", task.ID, err)
	}
}

func tenacityProfile() *domain.GeniusProfile {
	return &domain.GeniusProfile{
		Strengths:    []domain.GeniusPhase{domain.PhaseTenacity, domain.PhaseEnablement},
		Competencies: []domain.GeniusPhase{domain.PhaseWonder, domain.PhaseInvention},
		Frustrations: []domain.GeniusPhase{domain.PhaseDiscernment, domain.PhaseGalvanizing},
	}
}

func inventionProfile() *domain.GeniusProfile {
	return &domain.GeniusProfile{
		Strengths:    []domain.GeniusPhase{domain.PhaseInvention, domain.PhaseDiscernment},
		Competencies: []domain.GeniusPhase{domain.PhaseGalvanizing, domain.PhaseEnablement},
		Frustrations: []domain.GeniusPhase{domain.PhaseWonder, domain.PhaseTenacity},
	}
}

func TestRunQuestmasterEndToEnd(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedMember(t, env, 1, "m-ana", 480, tenacityProfile())
	seedMember(t, env, 2, "m-bob", 480, inventionProfile())

	seedQuest(t, env, 1, domain.Quest{ID: "q-done", State: domain.QuestCompleted})
	seedQuest(t, env, 2, domain.Quest{ID: "q-ready", State: domain.QuestLocked, UnlockConditions: []domain.UnlockCondition{
		{Kind: domain.CondQuestCompleted, QuestID: "q-done"},
	}})
	seedQuest(t, env, 3, domain.Quest{ID: "q-gated", State: domain.QuestLocked, UnlockConditions: []domain.UnlockCondition{
		{Kind: domain.CondTaskCompleted, TaskID: "t-open"},
	}})

	seedTask(t, env, 1, domain.Task{ID: "t-open", QuestID: "q-done", Status: domain.TaskInProgress, EstimateMinutes: 30, Phase: domain.PhaseWonder})
	seedTask(t, env, 2, domain.Task{ID: "t1", QuestID: "q-ready", EstimateMinutes: 60, Phase: domain.PhaseTenacity})
	seedTask(t, env, 3, domain.Task{ID: "t2", QuestID: "q-ready", EstimateMinutes: 60, Phase: domain.PhaseInvention})

	stats, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.UnlockedQuests != 1 {
		t.Fatalf("expected 1 unlock, got %d", stats.UnlockedQuests)
	}
	if stats.DecksGenerated != 2 {
		t.Fatalf("expected 2 decks, got %d", stats.DecksGenerated)
	}

	ready, err := env.Engine.Repo.GetQuest(env.Ctx, "q-ready")
	if err != nil || ready.State != domain.QuestUnlocked {
		t.Fatalf("q-ready should be unlocked, got %v %v", ready.State, err)
	}
	gated, _ := env.Engine.Repo.GetQuest(env.Ctx, "q-gated")
	if gated.State != domain.QuestLocked {
		t.Fatalf("q-gated should stay locked, got %v", gated.State)
	}

	// Phase fit drives ownership: t1 (tenacity) to m-ana, t2 (invention) to m-bob.
	t1, _ := env.Engine.Repo.GetTask(env.Ctx, "t1")
	if t1.AssignedMemberID == nil || *t1.AssignedMemberID != "m-ana" {
		t.Fatalf("t1 should go to m-ana, got %v", t1.AssignedMemberID)
	}
	t2, _ := env.Engine.Repo.GetTask(env.Ctx, "t2")
	if t2.AssignedMemberID == nil || *t2.AssignedMemberID != "m-bob" {
		t.Fatalf("t2 should go to m-bob, got %v", t2.AssignedMemberID)
	}
	// t-open lives under a completed quest but is still assignable work.
	if stats.TasksAssigned != 3 {
		t.Fatalf("expected 3 assignments, got %d", stats.TasksAssigned)
	}

	deck, err := env.Engine.Repo.GetDeck(env.Ctx, "m-ana", runDate)
	if err != nil {
		t.Fatalf("get deck: %v", err)
	}
	if deck.ID != "deck-m-ana-"+runDate || deck.TotalMinutes != 60 {
		t.Fatalf("unexpected deck %+v", deck)
	}

	summaries, err := env.Engine.Repo.ListSummaries(env.Ctx, "org-1", 10)
	if err != nil || len(summaries) != 1 {
		t.Fatalf("expected one summary, got %d (%v)", len(summaries), err)
	}
	s := summaries[0]
	if s.Status != "success" || s.Stats.DecksGenerated != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if !strings.HasPrefix(s.ID, "summary-"+s.JobID+"-org-1-") {
		t.Fatalf("unexpected summary id %s", s.ID)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 50, "org-1", "quest.unlocked", "", "")
	if err != nil || len(evts) != 1 || evts[0].EntityID != "q-ready" {
		t.Fatalf("expected one quest.unlocked event for q-ready, got %+v (%v)", evts, err)
	}
}

func TestRunQuestmasterIdempotent(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedMember(t, env, 1, "m-ana", 480, tenacityProfile())
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestLocked})
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", EstimateMinutes: 60, Phase: domain.PhaseTenacity})

	first, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.UnlockedQuests != 1 || first.TasksAssigned != 1 || first.DecksGenerated != 1 {
		t.Fatalf("unexpected first stats %+v", first)
	}

	second, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.UnlockedQuests != 0 || second.TasksAssigned != 0 {
		t.Fatalf("second run must not re-unlock or re-assign, got %+v", second)
	}
	if second.DecksGenerated != 1 {
		t.Fatalf("deck regeneration for the same day must overwrite, got %+v", second)
	}
	if n, _ := env.Engine.Repo.CountDecks(env.Ctx, "m-ana", runDate); n != 1 {
		t.Fatalf("expected a single deck row, got %d", n)
	}
	if summaries, _ := env.Engine.Repo.ListSummaries(env.Ctx, "org-1", 10); len(summaries) != 2 {
		t.Fatalf("each run records its own summary, got %d", len(summaries))
	}
}

func TestRunQuestmasterSkipsMemberWithoutProfile(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedMember(t, env, 1, "m-ana", 480, tenacityProfile())
	seedMember(t, env, 2, "m-new", 480, nil)
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestUnlocked})
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", EstimateMinutes: 60, Phase: domain.PhaseTenacity})

	stats, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Members != 2 || stats.DecksGenerated != 1 {
		t.Fatalf("profile-less member gets no deck, got %+v", stats)
	}
	if _, err := env.Engine.Repo.GetDeck(env.Ctx, "m-new", runDate); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected no deck for m-new, got %v", err)
	}
}

func TestRunQuestmasterDeckFailureIsolated(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedMember(t, env, 1, "m-ana", 480, tenacityProfile())
	seedMember(t, env, 2, "m-bad", 480, inventionProfile())
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestUnlocked})
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", EstimateMinutes: 60, Phase: domain.PhaseTenacity})

	env.Engine.BuildMemberDeck = func(m domain.Member, quests []domain.Quest, tasks []domain.Task, date string, generatedAt time.Time) (domain.MemberQuestDeck, bool, error) {
		if m.ID == "m-bad" {
			return domain.MemberQuestDeck{}, false, fmt.Errorf("boom")
		}
		deck, over := engine.BuildDeck(m, quests, tasks, date, generatedAt)
		return deck, over, nil
	}

	stats, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("one bad deck must not fail the run: %v", err)
	}
	if stats.DecksGenerated != 1 {
		t.Fatalf("expected 1 deck, got %d", stats.DecksGenerated)
	}
	var found bool
	for _, r := range stats.DeckResults {
		if r.MemberID == "m-bad" {
			found = true
			if r.Error == "" || r.DeckID != "" {
				t.Fatalf("m-bad result should carry the error, got %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("missing deck result for m-bad: %+v", stats.DeckResults)
	}
	if summaries, _ := env.Engine.Repo.ListSummaries(env.Ctx, "org-1", 10); len(summaries) != 1 || summaries[0].Status != "success" {
		t.Fatalf("run still succeeds, got %+v", summaries)
	}
}

func TestRunQuestmasterPersistsFailedSummary(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestLocked})

	// Break one of the snapshot loads mid-run.
	if _, err := env.Engine.DB.Exec(`DROP TABLE goals`); err != nil {
		t.Fatalf("drop goals: %v", err)
	}

	_, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err == nil || !strings.Contains(err.Error(), "load goals") {
		t.Fatalf("expected load goals failure, got %v", err)
	}
	summaries, lerr := env.Engine.Repo.ListSummaries(env.Ctx, "org-1", 10)
	if lerr != nil || len(summaries) != 1 {
		t.Fatalf("failed run must persist a summary, got %d (%v)", len(summaries), lerr)
	}
	if summaries[0].Status != "failed" || !strings.Contains(summaries[0].Error, "load goals") {
		t.Fatalf("unexpected failed summary %+v", summaries[0])
	}
}

func TestRunQuestmasterConfigErrors(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})

	if _, err := env.Engine.RunQuestmaster(env.Ctx, "org-missing", runTime); err == nil {
		t.Fatalf("unknown org must error")
	}
	if _, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime); err == nil || !strings.Contains(err.Error(), "seeded") {
		t.Fatalf("empty org must error before mutating, got %v", err)
	}
	if summaries, _ := env.Engine.Repo.ListSummaries(env.Ctx, "org-1", 10); len(summaries) != 0 {
		t.Fatalf("configuration errors must not record summaries, got %d", len(summaries))
	}
}

func TestRunQuestmasterStaleAndBlocked(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestInProgress})

	old := runTime.Add(-49 * time.Hour).Format(domain.TimeFormat)
	fresh := runTime.Add(-time.Hour).Format(domain.TimeFormat)
	owner := "m-gone"
	seedTask(t, env, 1, domain.Task{ID: "t-stale", QuestID: "q1", Status: domain.TaskInProgress, AssignedMemberID: &owner, UpdatedAt: old, EstimateMinutes: 30})
	seedTask(t, env, 2, domain.Task{ID: "t-blocked", QuestID: "q1", Status: domain.TaskTodo, AssignedMemberID: &owner, Blockers: []string{"waiting on legal"}, UpdatedAt: fresh, EstimateMinutes: 30})

	stats, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.StaleTasks != 1 || stats.BlockedTasks != 1 {
		t.Fatalf("expected 1 stale and 1 blocked, got %+v", stats)
	}
	evts, _ := env.Engine.Repo.LatestEvents(env.Ctx, 50, "org-1", "task.stale", "", "")
	if len(evts) != 1 || evts[0].EntityID != "t-stale" {
		t.Fatalf("expected task.stale for t-stale, got %+v", evts)
	}
}

func TestRunQuestmasterOverallocationWarning(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedMember(t, env, 1, "m-ana", 60, tenacityProfile())
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestUnlocked})
	owner := "m-ana"
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", AssignedMemberID: &owner, EstimateMinutes: 60})
	seedTask(t, env, 2, domain.Task{ID: "t2", QuestID: "q1", AssignedMemberID: &owner, EstimateMinutes: 60})

	stats, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(stats.Warnings) != 1 || !strings.Contains(stats.Warnings[0], "m-ana") {
		t.Fatalf("expected overallocation warning for m-ana, got %+v", stats.Warnings)
	}
	deck, _ := env.Engine.Repo.GetDeck(env.Ctx, "m-ana", runDate)
	if deck.TotalMinutes != 60 {
		t.Fatalf("deck must stay within capacity, got %d", deck.TotalMinutes)
	}
}

func TestRunQuestmasterDeadlineSkipsRemainingMembers(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme"})
	seedMember(t, env, 1, "m-a", 480, tenacityProfile())
	seedMember(t, env, 2, "m-b", 480, tenacityProfile())
	seedMember(t, env, 3, "m-c", 480, tenacityProfile())
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestUnlocked})
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", EstimateMinutes: 60, Phase: domain.PhaseTenacity})

	ctx, cancel := context.WithCancel(env.Ctx)
	defer cancel()
	env.Engine.BuildMemberDeck = func(m domain.Member, quests []domain.Quest, tasks []domain.Task, date string, generatedAt time.Time) (domain.MemberQuestDeck, bool, error) {
		if m.ID == "m-b" {
			cancel()
		}
		deck, over := engine.BuildDeck(m, quests, tasks, date, generatedAt)
		return deck, over, nil
	}

	stats, err := env.Engine.RunQuestmaster(ctx, "org-1", runTime)
	if err != nil {
		t.Fatalf("deadline during decking must not fail the run: %v", err)
	}
	if stats.DecksGenerated != 1 {
		t.Fatalf("only m-a completes, got %d decks", stats.DecksGenerated)
	}
	if stats.SkippedMembers != 1 {
		t.Fatalf("m-c must be recorded as skipped, got %+v", stats)
	}
	if len(stats.DeckResults) != 3 {
		t.Fatalf("every member gets a deck result, got %+v", stats.DeckResults)
	}
	summaries, lerr := env.Engine.Repo.ListSummaries(env.Ctx, "org-1", 10)
	if lerr != nil || len(summaries) != 1 || summaries[0].Status != "success" {
		t.Fatalf("summary must land despite the fired deadline, got %+v (%v)", summaries, lerr)
	}
}

func TestRunQuestmasterNotifications(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme", SlackEnabled: true, SlackChannel: "#quests"})
	seedMember(t, env, 1, "m-ana", 480, tenacityProfile())
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestUnlocked})
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", EstimateMinutes: 60, Phase: domain.PhaseTenacity})

	if _, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime); err != nil {
		t.Fatalf("run: %v", err)
	}
	// One deck digest plus the run digest.
	if len(env.Notif.slack) != 2 {
		t.Fatalf("expected 2 slack messages, got %d: %v", len(env.Notif.slack), env.Notif.slack)
	}
	if len(env.Notif.email) != 0 {
		t.Fatalf("slack takes precedence, got emails %v", env.Notif.email)
	}
}

func TestRunQuestmasterEmailFallback(t *testing.T) {
	env := newTestEnv(t, domain.Org{ID: "org-1", Name: "Acme", EmailEnabled: true})
	seedMember(t, env, 1, "m-ana", 480, tenacityProfile())
	seedQuest(t, env, 1, domain.Quest{ID: "q1", State: domain.QuestUnlocked})
	seedTask(t, env, 1, domain.Task{ID: "t1", QuestID: "q1", EstimateMinutes: 60, Phase: domain.PhaseTenacity})

	if _, err := env.Engine.RunQuestmaster(env.Ctx, "org-1", runTime); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(env.Notif.email) != 1 || env.Notif.email[0] != "m-ana@example.com" {
		t.Fatalf("expected deck email to m-ana, got %v", env.Notif.email)
	}
	if len(env.Notif.slack) != 0 {
		t.Fatalf("slack disabled, got %v", env.Notif.slack)
	}
}
