package questboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Questboard HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID               string   `json:"id"`
	OrgID            string   `json:"org_id"`
	QuestID          string   `json:"quest_id"`
	Title            string   `json:"title"`
	Status           string   `json:"status"`
	AssignedMemberID *string  `json:"assigned_member_id,omitempty"`
	Blockers         []string `json:"blockers,omitempty"`
	EstimateMinutes  int      `json:"estimate_minutes"`
	Phase            string   `json:"phase,omitempty"`
}

// Quest represents the API quest model (partial).
type Quest struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Title string `json:"title"`
	State string `json:"state"`
}

// DeckEntry groups a deck's tasks under their quest.
type DeckEntry struct {
	QuestID               string   `json:"quest_id"`
	TaskIDs               []string `json:"task_ids"`
	TotalEstimatedMinutes int      `json:"total_estimated_minutes"`
}

// Deck is a member's daily quest deck.
type Deck struct {
	ID           string      `json:"id"`
	OrgID        string      `json:"org_id"`
	MemberID     string      `json:"member_id"`
	Date         string      `json:"date"`
	Entries      []DeckEntry `json:"entries"`
	TotalMinutes int         `json:"total_minutes"`
	GeneratedAt  string      `json:"generated_at"`
}

// RunStats mirrors the questmaster run response.
type RunStats struct {
	UnlockedQuests int      `json:"unlocked_quests"`
	TasksAssigned  int      `json:"tasks_assigned"`
	DecksGenerated int      `json:"decks_generated"`
	SkippedMembers int      `json:"skipped_members"`
	StaleTasks     int      `json:"stale_tasks"`
	BlockedTasks   int      `json:"blocked_tasks"`
	Warnings       []string `json:"warnings,omitempty"`
}

// RunSummary is a persisted questmaster run record.
type RunSummary struct {
	ID         string   `json:"id"`
	OrgID      string   `json:"org_id"`
	JobID      string   `json:"job_id"`
	StartedAt  string   `json:"started_at"`
	FinishedAt string   `json:"finished_at"`
	Status     string   `json:"status"`
	Stats      RunStats `json:"stats"`
	Error      string   `json:"error,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates a task under a quest.
func (c *Client) CreateTask(ctx context.Context, questID, title string, estimateMinutes int, phase string) (Task, error) {
	body := map[string]any{
		"quest_id":         questID,
		"title":            title,
		"estimate_minutes": estimateMinutes,
	}
	if phase != "" {
		body["phase"] = phase
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.orgPath("tasks"), body, &resp)
	return resp, err
}

// CompleteTask marks a task done.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v1/tasks/%s", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": "done"}, &resp)
	return resp, err
}

// ListQuests returns the org's quests.
func (c *Client) ListQuests(ctx context.Context) ([]Quest, error) {
	var resp []Quest
	err := c.do(ctx, http.MethodGet, c.orgPath("quests"), nil, &resp)
	return resp, err
}

// RunQuestmaster triggers a questmaster run. A zero logicalNow uses the
// server's clock.
func (c *Client) RunQuestmaster(ctx context.Context, logicalNow time.Time) (RunStats, error) {
	body := map[string]any{}
	if !logicalNow.IsZero() {
		body["now"] = logicalNow.UTC().Format(time.RFC3339)
	}
	var resp RunStats
	err := c.do(ctx, http.MethodPost, c.orgPath("questmaster/run"), body, &resp)
	return resp, err
}

// GetDeck fetches a member's deck. Empty date means today.
func (c *Client) GetDeck(ctx context.Context, memberID, date string) (Deck, error) {
	endpoint := fmt.Sprintf("v1/members/%s/deck", url.PathEscape(memberID))
	if date != "" {
		endpoint = fmt.Sprintf("%s?date=%s", endpoint, url.QueryEscape(date))
	}
	var resp Deck
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListDecks returns the org's decks, optionally filtered by date.
func (c *Client) ListDecks(ctx context.Context, date string) ([]Deck, error) {
	endpoint := c.orgPath("decks")
	if date != "" {
		endpoint = fmt.Sprintf("%s?date=%s", endpoint, url.QueryEscape(date))
	}
	var resp []Deck
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ListSummaries returns recent questmaster run summaries.
func (c *Client) ListSummaries(ctx context.Context, limit int) ([]RunSummary, error) {
	endpoint := c.orgPath("summaries")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []RunSummary
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Events returns recent events for the org.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.orgPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) orgPath(p string) string {
	org := url.PathEscape(c.OrgID)
	return fmt.Sprintf("v1/orgs/%s/%s", org, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
