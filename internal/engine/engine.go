package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"questboard/internal/config"
	"questboard/internal/domain"
	"questboard/internal/events"
	"questboard/internal/notify"
	"questboard/internal/repo"
)

// DeckBuilder builds one member's deck from the org snapshot. It is a field
// on Engine so tests can inject per-member failures; the default delegates to
// BuildDeck and never errors.
type DeckBuilder func(member domain.Member, quests []domain.Quest, tasks []domain.Task, date string, generatedAt time.Time) (domain.MemberQuestDeck, bool, error)

// Engine runs the questmaster batch over one org. All dependencies are plain
// fields; zero values fall back to sane defaults via New.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Publisher
	Notifier notify.Notifier
	Config   *config.Config
	Logger   *log.Logger

	// Now supplies wall-clock time for finished_at; tests pin it.
	Now func() time.Time

	BuildMemberDeck DeckBuilder
}

func New(db *sql.DB, cfg *config.Config, notifier notify.Notifier) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Publisher{Writer: events.Writer{DB: db}},
		Notifier: notifier,
		Config:   cfg,
		Now:      time.Now,
		BuildMemberDeck: func(m domain.Member, quests []domain.Quest, tasks []domain.Task, date string, generatedAt time.Time) (domain.MemberQuestDeck, bool, error) {
			deck, over := BuildDeck(m, quests, tasks, date, generatedAt)
			return deck, over, nil
		},
	}
}

func (e Engine) logger() *log.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return log.Default()
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) buildDeck(m domain.Member, quests []domain.Quest, tasks []domain.Task, date string, generatedAt time.Time) (domain.MemberQuestDeck, bool, error) {
	if e.BuildMemberDeck != nil {
		return e.BuildMemberDeck(m, quests, tasks, date, generatedAt)
	}
	deck, over := BuildDeck(m, quests, tasks, date, generatedAt)
	return deck, over, nil
}

// RunQuestmaster executes one full pass for orgID at logical time now:
// unlock evaluation, task assignment, per-member deck generation, staleness
// and blocker detection, then a persisted run summary. Deck generation is
// isolated per member; one member's failure is recorded in the stats and the
// run continues. Failures in the global phases abort the run and persist a
// failed summary (best effort) before returning the original error.
func (e Engine) RunQuestmaster(ctx context.Context, orgID string, now time.Time) (domain.RunStats, error) {
	var stats domain.RunStats
	if strings.TrimSpace(orgID) == "" {
		return stats, errors.New("org id is required")
	}

	org, err := e.Repo.GetOrg(ctx, orgID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return stats, fmt.Errorf("org %s not found", orgID)
		}
		return stats, fmt.Errorf("load org %s: %w", orgID, err)
	}

	jobID := uuid.New().String()
	meta := events.Meta{OrgID: orgID, SourceApp: e.Config.SourceApp()}
	nowStr := now.UTC().Format(domain.TimeFormat)

	goals, err := e.Repo.ListGoals(ctx, orgID)
	if err != nil {
		return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("load goals: %w", err))
	}
	questlines, err := e.Repo.ListQuestlines(ctx, orgID)
	if err != nil {
		return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("load questlines: %w", err))
	}
	quests, err := e.Repo.ListQuests(ctx, orgID)
	if err != nil {
		return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("load quests: %w", err))
	}
	tasks, err := e.Repo.ListTasks(ctx, repo.TaskFilters{OrgID: orgID})
	if err != nil {
		return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("load tasks: %w", err))
	}
	members, err := e.Repo.ListMembers(ctx, orgID)
	if err != nil {
		return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("load members: %w", err))
	}
	if len(quests) == 0 && len(tasks) == 0 && len(members) == 0 {
		return stats, fmt.Errorf("org %s has no quests, tasks or members seeded", orgID)
	}

	stats.Goals = len(goals)
	stats.Questlines = len(questlines)
	stats.Quests = len(quests)
	stats.Tasks = len(tasks)
	stats.Members = len(members)

	// Phase 1: unlock evaluation.
	unlocked := EvaluateUnlocks(quests, tasks)
	questIdx := make(map[string]int, len(quests))
	for i, q := range quests {
		questIdx[q.ID] = i
	}
	for _, q := range unlocked {
		q.UpdatedAt = nowStr
		if err := e.Repo.UpdateQuest(ctx, nil, q); err != nil {
			return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("unlock quest %s: %w", q.ID, err))
		}
		quests[questIdx[q.ID]] = q
		e.Events.Publish(ctx, "quest.unlocked", meta, domain.KindQuest, q.ID, events.EventPayload{"title": q.Title})
	}
	stats.UnlockedQuests = len(unlocked)

	// Phase 2: assignment. The in-memory snapshot is patched so freshly
	// assigned tasks land in today's decks.
	taskIdx := make(map[string]int, len(tasks))
	for i, t := range tasks {
		taskIdx[t.ID] = i
	}
	assignments := AssignTasks(tasks, members)
	for _, a := range assignments {
		i := taskIdx[a.TaskID]
		memberID := a.MemberID
		tasks[i].AssignedMemberID = &memberID
		tasks[i].UpdatedAt = nowStr
		if err := e.Repo.UpdateTask(ctx, nil, tasks[i]); err != nil {
			return stats, e.failRun(ctx, orgID, jobID, now, stats, fmt.Errorf("assign task %s: %w", a.TaskID, err))
		}
		e.Events.Publish(ctx, "task.assigned", meta, domain.KindTask, a.TaskID, events.EventPayload{"member_id": a.MemberID})
	}
	stats.TasksAssigned = len(assignments)

	// Phase 3: deck generation, isolated per member.
	date := now.UTC().Format("2006-01-02")
	for _, m := range members {
		if m.Profile == nil {
			continue
		}
		if ctx.Err() != nil {
			e.logger().Printf("questmaster: deadline reached, skipping member %s", m.ID)
			stats.SkippedMembers++
			stats.DeckResults = append(stats.DeckResults, domain.MemberDeckResult{MemberID: m.ID, Skipped: true})
			continue
		}
		deck, overallocated, err := e.buildDeck(m, quests, tasks, date, now)
		if err != nil {
			e.logger().Printf("questmaster: deck for member %s failed: %v", m.ID, err)
			stats.DeckResults = append(stats.DeckResults, domain.MemberDeckResult{MemberID: m.ID, Error: err.Error()})
			continue
		}
		if err := e.Repo.UpsertDeck(ctx, deck); err != nil {
			e.logger().Printf("questmaster: persist deck for member %s failed: %v", m.ID, err)
			stats.DeckResults = append(stats.DeckResults, domain.MemberDeckResult{MemberID: m.ID, Error: err.Error()})
			continue
		}
		if overallocated {
			stats.Warnings = append(stats.Warnings, fmt.Sprintf("member %s: eligible work exceeds daily capacity of %d min", m.ID, m.DailyCapacityMinutes))
		}
		stats.DecksGenerated++
		stats.DeckResults = append(stats.DeckResults, domain.MemberDeckResult{MemberID: m.ID, DeckID: deck.ID})
		e.Events.Publish(ctx, "quest.deck.generated", meta, domain.KindDeck, deck.ID, events.EventPayload{
			"member_id":     m.ID,
			"date":          date,
			"total_minutes": deck.TotalMinutes,
		})
		e.notifyDeck(ctx, org, m, deck)
	}

	// Phase 4: staleness and blocker detection, read-only.
	staleAfter := time.Duration(e.Config.StaleHours()) * time.Hour
	report := DetectStaleAndBlocked(tasks, now, staleAfter)
	for _, t := range report.Stale {
		e.Events.Publish(ctx, "task.stale", meta, domain.KindTask, t.ID, events.EventPayload{
			"title":      t.Title,
			"updated_at": t.UpdatedAt,
		})
	}
	for _, t := range report.Blocked {
		e.Events.Publish(ctx, "task.blocked", meta, domain.KindTask, t.ID, events.EventPayload{
			"title":    t.Title,
			"blockers": t.Blockers,
		})
	}
	stats.StaleTasks = len(report.Stale)
	stats.BlockedTasks = len(report.Blocked)

	summary := domain.JobRunSummary{
		ID:         domain.SummaryID(jobID, orgID, now),
		OrgID:      orgID,
		JobID:      jobID,
		StartedAt:  nowStr,
		FinishedAt: e.now().UTC().Format(domain.TimeFormat),
		Status:     "success",
		Stats:      stats,
	}
	// The summary must land even when the run deadline has already fired.
	if err := e.Repo.InsertSummary(context.WithoutCancel(ctx), summary); err != nil {
		return stats, fmt.Errorf("persist run summary: %w", err)
	}
	e.Events.Publish(ctx, "job.completed", meta, domain.KindSummary, summary.ID, events.EventPayload{
		"status":          summary.Status,
		"decks_generated": stats.DecksGenerated,
	})
	if org.SlackEnabled && e.Notifier != nil {
		e.Notifier.SendSlackMessage(ctx, org.SlackChannel, notify.RunDigest(org.Name, stats))
	}
	return stats, nil
}

// failRun persists a failed summary best-effort and hands back the original
// error. A summary write failure must never mask why the run died.
func (e Engine) failRun(ctx context.Context, orgID, jobID string, startedAt time.Time, stats domain.RunStats, runErr error) error {
	summary := domain.JobRunSummary{
		ID:         domain.SummaryID(jobID, orgID, startedAt),
		OrgID:      orgID,
		JobID:      jobID,
		StartedAt:  startedAt.UTC().Format(domain.TimeFormat),
		FinishedAt: e.now().UTC().Format(domain.TimeFormat),
		Status:     "failed",
		Stats:      stats,
		Error:      runErr.Error(),
	}
	detached := context.WithoutCancel(ctx)
	if err := e.Repo.InsertSummary(detached, summary); err != nil {
		e.logger().Printf("questmaster: persist failed summary: %v", err)
	}
	e.Events.Publish(detached, "job.failed", events.Meta{OrgID: orgID, SourceApp: e.Config.SourceApp()}, domain.KindSummary, summary.ID, events.EventPayload{
		"error": runErr.Error(),
	})
	return runErr
}

// notifyDeck delivers the member's daily digest over the org's preferred
// channel: Slack when enabled, otherwise email when enabled, otherwise
// nothing. Delivery failure is logged inside the notifier and ignored here.
func (e Engine) notifyDeck(ctx context.Context, org domain.Org, m domain.Member, deck domain.MemberQuestDeck) {
	if e.Notifier == nil {
		return
	}
	text := notify.DeckDigest(m, deck)
	switch {
	case org.SlackEnabled:
		e.Notifier.SendSlackMessage(ctx, org.SlackChannel, text)
	case org.EmailEnabled && m.Email != "":
		res := e.Notifier.SendEmail(ctx, m.Email, "Your quest deck for "+deck.Date, text)
		if !res.Sent && res.Error != "" {
			e.logger().Printf("questmaster: email deck digest to %s: %s", m.Email, res.Error)
		}
	}
}
