package server

import (
	"questboard/internal/config"
	"questboard/internal/domain"
)

// Request payloads

type CreateOrgRequest struct {
	ID           *string `json:"id,omitempty"`
	Name         string  `json:"name"`
	SlackEnabled bool    `json:"slack_enabled,omitempty"`
	SlackChannel string  `json:"slack_channel,omitempty"`
	EmailEnabled bool    `json:"email_enabled,omitempty"`
}

type UpdateOrgRequest struct {
	Name         *string `json:"name,omitempty"`
	SlackEnabled *bool   `json:"slack_enabled,omitempty"`
	SlackChannel *string `json:"slack_channel,omitempty"`
	EmailEnabled *bool   `json:"email_enabled,omitempty"`
}

type CreateMemberRequest struct {
	ID                   *string               `json:"id,omitempty"`
	Email                string                `json:"email"`
	Name                 *string               `json:"name,omitempty"`
	Profile              *domain.GeniusProfile `json:"working_genius_profile,omitempty"`
	DailyCapacityMinutes int                   `json:"daily_capacity_minutes"`
}

type UpdateMemberRequest struct {
	Name                 *string               `json:"name,omitempty"`
	Profile              *domain.GeniusProfile `json:"working_genius_profile,omitempty"`
	DailyCapacityMinutes *int                  `json:"daily_capacity_minutes,omitempty"`
}

type CreateGoalRequest struct {
	ID     *string `json:"id,omitempty"`
	Title  string  `json:"title"`
	Status *string `json:"status,omitempty" enum:"draft,clarified,approved,decomposed,active,done,archived"`
}

type CreateQuestlineRequest struct {
	ID     *string `json:"id,omitempty"`
	GoalID string  `json:"goal_id"`
	Title  string  `json:"title"`
}

type CreateQuestRequest struct {
	ID               *string                  `json:"id,omitempty"`
	QuestlineID      *string                  `json:"questline_id,omitempty"`
	Title            string                   `json:"title"`
	Objective        *string                  `json:"objective,omitempty"`
	UnlockConditions []domain.UnlockCondition `json:"unlock_conditions,omitempty"`
}

type SetQuestStateRequest struct {
	State domain.QuestState `json:"state" enum:"unlocked,in-progress,completed"`
}

type CreateTaskRequest struct {
	ID              *string            `json:"id,omitempty"`
	QuestID         string             `json:"quest_id"`
	Title           string             `json:"title"`
	EstimateMinutes int                `json:"estimate_minutes"`
	Priority        *int               `json:"priority,omitempty"`
	Phase           domain.GeniusPhase `json:"phase,omitempty" enum:"wonder,invention,discernment,galvanizing,enablement,tenacity"`
	AssigneeID      *string            `json:"assignee_id,omitempty"`
	Blockers        []string           `json:"blockers,omitempty"`
}

type UpdateTaskRequest struct {
	Status     *domain.TaskStatus `json:"status,omitempty" enum:"todo,in-progress,blocked,done"`
	AssigneeID *string            `json:"assignee_id,omitempty"`
	Blockers   *[]string          `json:"blockers,omitempty"`
	Priority   *int               `json:"priority,omitempty"`
}

type RunRequest struct {
	// Now overrides the logical run time, mainly for replays and tests.
	Now *string `json:"now,omitempty" format:"date-time"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
}

// Response payloads

type OrgStatusResponse struct {
	OrgID      string         `json:"org_id"`
	TaskCounts map[string]int `json:"task_counts"`
	Members    int            `json:"members"`
	Quests     int            `json:"quests"`
}

type OrgConfigResponse struct {
	OrgID  string        `json:"org_id"`
	Config config.Config `json:"config"`
}

type APIKeyCreatedResponse struct {
	ID      string `json:"id"`
	ActorID string `json:"actor_id"`
	Name    string `json:"name,omitempty"`
	// Key is returned once at creation; only its hash is stored.
	Key string `json:"key"`
}
