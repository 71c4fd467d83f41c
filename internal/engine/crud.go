package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"questboard/internal/domain"
	"questboard/internal/events"
)

type OrgCreateOptions struct {
	ID           string
	Name         string
	SlackEnabled bool
	SlackChannel string
	EmailEnabled bool
}

func (e Engine) CreateOrg(ctx context.Context, opts OrgCreateOptions) (domain.Org, error) {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if strings.TrimSpace(opts.Name) == "" {
		return domain.Org{}, fmt.Errorf("org name is required")
	}
	org := domain.Org{
		ID:           opts.ID,
		Name:         opts.Name,
		SlackEnabled: opts.SlackEnabled,
		SlackChannel: opts.SlackChannel,
		EmailEnabled: opts.EmailEnabled,
		CreatedAt:    e.now().UTC().Format(domain.TimeFormat),
	}
	if err := e.Repo.InsertOrg(ctx, org); err != nil {
		return domain.Org{}, err
	}
	e.Events.Publish(ctx, "org.created", e.meta(org.ID), domain.KindOrg, org.ID, events.EventPayload{"name": org.Name})
	return org, nil
}

type GoalCreateOptions struct {
	ID     string
	OrgID  string
	Title  string
	Status string
}

func (e Engine) CreateGoal(ctx context.Context, opts GoalCreateOptions) (domain.Goal, error) {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Goal{}, fmt.Errorf("goal title is required")
	}
	if opts.Status == "" {
		opts.Status = "active"
	}
	now := e.now().UTC().Format(domain.TimeFormat)
	g := domain.Goal{ID: opts.ID, OrgID: opts.OrgID, Title: opts.Title, Status: opts.Status, CreatedAt: now, UpdatedAt: now}
	if err := e.Repo.InsertGoal(ctx, g); err != nil {
		return domain.Goal{}, err
	}
	e.Events.Publish(ctx, "goal.created", e.meta(opts.OrgID), domain.KindGoal, g.ID, events.EventPayload{"title": g.Title})
	return g, nil
}

type QuestlineCreateOptions struct {
	ID     string
	OrgID  string
	GoalID string
	Title  string
}

func (e Engine) CreateQuestline(ctx context.Context, opts QuestlineCreateOptions) (domain.Questline, error) {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Questline{}, fmt.Errorf("questline title is required")
	}
	q := domain.Questline{ID: opts.ID, OrgID: opts.OrgID, GoalID: opts.GoalID, Title: opts.Title, CreatedAt: e.now().UTC().Format(domain.TimeFormat)}
	if err := e.Repo.InsertQuestline(ctx, q); err != nil {
		return domain.Questline{}, err
	}
	e.Events.Publish(ctx, "questline.created", e.meta(opts.OrgID), domain.KindQuestline, q.ID, events.EventPayload{"title": q.Title})
	return q, nil
}

type QuestCreateOptions struct {
	ID               string
	OrgID            string
	QuestlineID      string
	Title            string
	Objective        string
	UnlockConditions []domain.UnlockCondition
}

// CreateQuest inserts a new quest in the locked state; the questmaster run
// decides when it opens.
func (e Engine) CreateQuest(ctx context.Context, opts QuestCreateOptions) (domain.Quest, error) {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Quest{}, fmt.Errorf("quest title is required")
	}
	for _, c := range opts.UnlockConditions {
		switch c.Kind {
		case domain.CondTaskCompleted:
			if c.TaskID == "" {
				return domain.Quest{}, fmt.Errorf("task_completed condition requires task_id")
			}
		case domain.CondQuestCompleted:
			if c.QuestID == "" {
				return domain.Quest{}, fmt.Errorf("quest_completed condition requires quest_id")
			}
		case domain.CondAllTasksCompleted:
			if len(c.TaskIDs) == 0 {
				return domain.Quest{}, fmt.Errorf("all_tasks_completed condition requires task_ids")
			}
		default:
			return domain.Quest{}, fmt.Errorf("invalid unlock condition kind %q", c.Kind)
		}
	}
	now := e.now().UTC().Format(domain.TimeFormat)
	q := domain.Quest{
		ID:               opts.ID,
		OrgID:            opts.OrgID,
		QuestlineID:      opts.QuestlineID,
		Title:            opts.Title,
		Objective:        opts.Objective,
		UnlockConditions: opts.UnlockConditions,
		State:            domain.QuestLocked,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := e.Repo.InsertQuest(ctx, q); err != nil {
		return domain.Quest{}, err
	}
	e.Events.Publish(ctx, "quest.created", e.meta(opts.OrgID), domain.KindQuest, q.ID, events.EventPayload{"title": q.Title})
	return q, nil
}

// SetQuestState advances a quest's state. The lifecycle is forward-only.
func (e Engine) SetQuestState(ctx context.Context, id string, state domain.QuestState) (domain.Quest, error) {
	q, err := e.Repo.GetQuest(ctx, id)
	if err != nil {
		return domain.Quest{}, err
	}
	if err := domain.CanAdvanceQuest(q.State, state); err != nil {
		return domain.Quest{}, err
	}
	now := e.now().UTC().Format(domain.TimeFormat)
	q.State = state
	q.UpdatedAt = now
	if state == domain.QuestCompleted {
		q.CompletedAt = &now
	}
	if err := e.Repo.UpdateQuest(ctx, nil, q); err != nil {
		return domain.Quest{}, err
	}
	e.Events.Publish(ctx, "quest.state.changed", e.meta(q.OrgID), domain.KindQuest, q.ID, events.EventPayload{"state": string(state)})
	return q, nil
}

type TaskCreateOptions struct {
	ID              string
	OrgID           string
	QuestID         string
	Title           string
	EstimateMinutes int
	Priority        *int
	Phase           domain.GeniusPhase
	AssigneeID      string
	Blockers        []string
}

func (e Engine) CreateTask(ctx context.Context, opts TaskCreateOptions) (domain.Task, error) {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if strings.TrimSpace(opts.Title) == "" {
		return domain.Task{}, fmt.Errorf("task title is required")
	}
	if opts.QuestID == "" {
		return domain.Task{}, fmt.Errorf("task quest_id is required")
	}
	if opts.EstimateMinutes <= 0 {
		return domain.Task{}, fmt.Errorf("task estimate_minutes must be positive")
	}
	if !domain.ValidPhase(opts.Phase) {
		return domain.Task{}, fmt.Errorf("invalid phase %q", opts.Phase)
	}
	if _, err := e.Repo.GetQuest(ctx, opts.QuestID); err != nil {
		return domain.Task{}, fmt.Errorf("quest %s: %w", opts.QuestID, err)
	}
	now := e.now().UTC().Format(domain.TimeFormat)
	t := domain.Task{
		ID:              opts.ID,
		OrgID:           opts.OrgID,
		QuestID:         opts.QuestID,
		Title:           opts.Title,
		Status:          domain.TaskTodo,
		EstimateMinutes: opts.EstimateMinutes,
		Priority:        opts.Priority,
		Phase:           opts.Phase,
		Blockers:        opts.Blockers,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if opts.AssigneeID != "" {
		t.AssignedMemberID = &opts.AssigneeID
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	e.Events.Publish(ctx, "task.created", e.meta(opts.OrgID), domain.KindTask, t.ID, events.EventPayload{"title": t.Title})
	return t, nil
}

type TaskUpdateOptions struct {
	ID         string
	Status     *domain.TaskStatus
	AssigneeID *string
	Blockers   *[]string
	Priority   *int
}

// UpdateTask patches status, assignee, blockers or priority. Any change
// refreshes updated_at, which resets the staleness clock.
func (e Engine) UpdateTask(ctx context.Context, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, opts.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Status != nil {
		if !domain.ValidTaskStatus(*opts.Status) {
			return domain.Task{}, fmt.Errorf("invalid task status %q", *opts.Status)
		}
		t.Status = *opts.Status
	}
	if opts.AssigneeID != nil {
		if *opts.AssigneeID == "" {
			t.AssignedMemberID = nil
		} else {
			t.AssignedMemberID = opts.AssigneeID
		}
	}
	if opts.Blockers != nil {
		t.Blockers = *opts.Blockers
	}
	if opts.Priority != nil {
		t.Priority = opts.Priority
	}
	t.UpdatedAt = e.now().UTC().Format(domain.TimeFormat)
	if err := e.Repo.UpdateTask(ctx, nil, t); err != nil {
		return domain.Task{}, err
	}
	evtType := "task.updated"
	if opts.Status != nil && *opts.Status == domain.TaskDone {
		evtType = "task.completed"
	}
	e.Events.Publish(ctx, evtType, e.meta(t.OrgID), domain.KindTask, t.ID, events.EventPayload{"status": string(t.Status)})
	return t, nil
}

type MemberCreateOptions struct {
	ID                   string
	OrgID                string
	Email                string
	Name                 string
	Profile              *domain.GeniusProfile
	DailyCapacityMinutes int
}

func (e Engine) CreateMember(ctx context.Context, opts MemberCreateOptions) (domain.Member, error) {
	if opts.ID == "" {
		opts.ID = uuid.New().String()
	}
	if strings.TrimSpace(opts.Email) == "" {
		return domain.Member{}, fmt.Errorf("member email is required")
	}
	if opts.DailyCapacityMinutes < 0 {
		return domain.Member{}, fmt.Errorf("member daily_capacity_minutes must not be negative")
	}
	if err := domain.ValidateProfile(opts.Profile); err != nil {
		return domain.Member{}, err
	}
	m := domain.Member{
		ID:                   opts.ID,
		OrgID:                opts.OrgID,
		Email:                opts.Email,
		Name:                 opts.Name,
		Profile:              opts.Profile,
		DailyCapacityMinutes: opts.DailyCapacityMinutes,
		CreatedAt:            e.now().UTC().Format(domain.TimeFormat),
	}
	if err := e.Repo.InsertMember(ctx, m); err != nil {
		return domain.Member{}, err
	}
	e.Events.Publish(ctx, "member.created", e.meta(opts.OrgID), domain.KindMember, m.ID, events.EventPayload{"email": m.Email})
	return m, nil
}

type MemberUpdateOptions struct {
	ID                   string
	Name                 *string
	Profile              *domain.GeniusProfile
	DailyCapacityMinutes *int
}

func (e Engine) UpdateMember(ctx context.Context, opts MemberUpdateOptions) (domain.Member, error) {
	m, err := e.Repo.GetMember(ctx, opts.ID)
	if err != nil {
		return domain.Member{}, err
	}
	if opts.Name != nil {
		m.Name = *opts.Name
	}
	if opts.Profile != nil {
		if err := domain.ValidateProfile(opts.Profile); err != nil {
			return domain.Member{}, err
		}
		m.Profile = opts.Profile
	}
	if opts.DailyCapacityMinutes != nil {
		if *opts.DailyCapacityMinutes < 0 {
			return domain.Member{}, fmt.Errorf("member daily_capacity_minutes must not be negative")
		}
		m.DailyCapacityMinutes = *opts.DailyCapacityMinutes
	}
	if err := e.Repo.UpdateMember(ctx, m); err != nil {
		return domain.Member{}, err
	}
	e.Events.Publish(ctx, "member.updated", e.meta(m.OrgID), domain.KindMember, m.ID, nil)
	return m, nil
}

func (e Engine) meta(orgID string) events.Meta {
	return events.Meta{OrgID: orgID, SourceApp: e.Config.SourceApp()}
}
