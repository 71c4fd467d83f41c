package domain

import (
	"fmt"
	"time"
)

// TimeFormat is used for all persisted timestamps. Nano precision keeps the
// staleness boundary strict at sub-second resolution.
const TimeFormat = time.RFC3339Nano

type QuestState string

const (
	QuestLocked     QuestState = "locked"
	QuestUnlocked   QuestState = "unlocked"
	QuestInProgress QuestState = "in-progress"
	QuestCompleted  QuestState = "completed"
)

type TaskStatus string

const (
	TaskTodo       TaskStatus = "todo"
	TaskInProgress TaskStatus = "in-progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
)

type ConditionKind string

const (
	CondTaskCompleted     ConditionKind = "task_completed"
	CondQuestCompleted    ConditionKind = "quest_completed"
	CondAllTasksCompleted ConditionKind = "all_tasks_completed"
)

// GeniusPhase is one of the six Working Genius categories. It is computed
// upstream at decomposition time and treated as opaque input here.
type GeniusPhase string

const (
	PhaseWonder      GeniusPhase = "wonder"
	PhaseInvention   GeniusPhase = "invention"
	PhaseDiscernment GeniusPhase = "discernment"
	PhaseGalvanizing GeniusPhase = "galvanizing"
	PhaseEnablement  GeniusPhase = "enablement"
	PhaseTenacity    GeniusPhase = "tenacity"
)

// Entity kind names recorded on events. Closed set; storage itself is
// per-entity tables, never kind-keyed blobs.
const (
	KindOrg       = "org"
	KindGoal      = "goal"
	KindQuestline = "questline"
	KindQuest     = "quest"
	KindTask      = "task"
	KindMember    = "member"
	KindDeck      = "member_quest_deck"
	KindSummary   = "job_run_summary"
)

type Org struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	SlackEnabled bool   `json:"slack_enabled"`
	SlackChannel string `json:"slack_channel,omitempty"`
	EmailEnabled bool   `json:"email_enabled"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type Goal struct {
	ID        string `json:"id"`
	OrgID     string `json:"org_id"`
	Title     string `json:"title"`
	Status    string `json:"status" enum:"draft,clarified,approved,decomposed,active,done,archived"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Questline struct {
	ID        string   `json:"id"`
	OrgID     string   `json:"org_id"`
	GoalID    string   `json:"goal_id"`
	Title     string   `json:"title"`
	QuestIDs  []string `json:"quest_ids,omitempty"`
	CreatedAt string   `json:"created_at" format:"date-time"`
}

// UnlockCondition gates a quest on other quests/tasks, referenced by id so it
// tolerates reordering and deletion. A condition pointing at a missing entity
// is unsatisfied, not an error.
type UnlockCondition struct {
	Kind    ConditionKind `json:"kind" enum:"task_completed,quest_completed,all_tasks_completed"`
	TaskID  string        `json:"task_id,omitempty"`
	QuestID string        `json:"quest_id,omitempty"`
	TaskIDs []string      `json:"task_ids,omitempty"`
}

type Quest struct {
	ID               string            `json:"id"`
	OrgID            string            `json:"org_id"`
	QuestlineID      string            `json:"questline_id,omitempty"`
	Title            string            `json:"title"`
	Objective        string            `json:"objective,omitempty"`
	UnlockConditions []UnlockCondition `json:"unlock_conditions,omitempty"`
	TaskIDs          []string          `json:"task_ids,omitempty"`
	State            QuestState        `json:"state" enum:"locked,unlocked,in-progress,completed"`
	CreatedAt        string            `json:"created_at" format:"date-time"`
	UpdatedAt        string            `json:"updated_at" format:"date-time"`
	CompletedAt      *string           `json:"completed_at,omitempty" format:"date-time"`
}

type Task struct {
	ID               string      `json:"id"`
	OrgID            string      `json:"org_id"`
	QuestID          string      `json:"quest_id"`
	Title            string      `json:"title"`
	Status           TaskStatus  `json:"status" enum:"todo,in-progress,blocked,done"`
	AssignedMemberID *string     `json:"assigned_member_id,omitempty"`
	Blockers         []string    `json:"blockers,omitempty"`
	EstimateMinutes  int         `json:"estimate_minutes"`
	Priority         *int        `json:"priority,omitempty"`
	Phase            GeniusPhase `json:"phase,omitempty"`
	CreatedAt        string      `json:"created_at" format:"date-time"`
	UpdatedAt        string      `json:"updated_at" format:"date-time"`
}

// GeniusProfile partitions the six phases into three disjoint pairs.
type GeniusProfile struct {
	Strengths    []GeniusPhase `json:"strengths"`
	Competencies []GeniusPhase `json:"competencies"`
	Frustrations []GeniusPhase `json:"frustrations"`
}

type Member struct {
	ID                   string         `json:"id"`
	OrgID                string         `json:"org_id"`
	Email                string         `json:"email"`
	Name                 string         `json:"name,omitempty"`
	Profile              *GeniusProfile `json:"working_genius_profile,omitempty"`
	DailyCapacityMinutes int            `json:"daily_capacity_minutes"`
	CreatedAt            string         `json:"created_at" format:"date-time"`
}

type DeckEntry struct {
	QuestID               string   `json:"quest_id"`
	TaskIDs               []string `json:"task_ids"`
	TotalEstimatedMinutes int      `json:"total_estimated_minutes"`
}

// MemberQuestDeck is the per-member, per-day work bundle. Regenerating for the
// same member+date overwrites the previous deck.
type MemberQuestDeck struct {
	ID           string      `json:"id"`
	OrgID        string      `json:"org_id"`
	MemberID     string      `json:"member_id"`
	Date         string      `json:"date"`
	Entries      []DeckEntry `json:"entries"`
	TotalMinutes int         `json:"total_minutes"`
	GeneratedAt  string      `json:"generated_at" format:"date-time"`
}

type MemberDeckResult struct {
	MemberID string `json:"member_id"`
	DeckID   string `json:"deck_id,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

type RunStats struct {
	Goals          int                `json:"goals"`
	Questlines     int                `json:"questlines"`
	Quests         int                `json:"quests"`
	Tasks          int                `json:"tasks"`
	Members        int                `json:"members"`
	UnlockedQuests int                `json:"unlocked_quests"`
	TasksAssigned  int                `json:"tasks_assigned"`
	DecksGenerated int                `json:"decks_generated"`
	SkippedMembers int                `json:"skipped_members"`
	StaleTasks     int                `json:"stale_tasks"`
	BlockedTasks   int                `json:"blocked_tasks"`
	Warnings       []string           `json:"warnings,omitempty"`
	DeckResults    []MemberDeckResult `json:"deck_results,omitempty"`
}

type JobRunSummary struct {
	ID         string   `json:"id"`
	OrgID      string   `json:"org_id"`
	JobID      string   `json:"job_id"`
	StartedAt  string   `json:"started_at" format:"date-time"`
	FinishedAt string   `json:"finished_at" format:"date-time"`
	Status     string   `json:"status" enum:"success,failed"`
	Stats      RunStats `json:"stats"`
	Error      string   `json:"error,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	SourceApp  string `json:"source_app"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// DeckID is the deterministic deck key for a member and a YYYY-MM-DD date.
func DeckID(memberID, date string) string {
	return fmt.Sprintf("deck-%s-%s", memberID, date)
}

// SummaryID keys a job run summary by job, org and start time.
func SummaryID(jobID, orgID string, startedAt time.Time) string {
	return fmt.Sprintf("summary-%s-%s-%d", jobID, orgID, startedAt.UnixMilli())
}
