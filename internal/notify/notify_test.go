package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questboard/internal/config"
	"questboard/internal/domain"
)

func TestSendSlackMessagePostsWebhook(t *testing.T) {
	var received slackPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(config.SlackConfig{
		Enabled:    true,
		WebhookURL: srv.URL,
		Channel:    "#quests",
	}, config.EmailConfig{})

	ok := c.SendSlackMessage(context.Background(), "", "deck ready")
	assert.True(t, ok)
	assert.Equal(t, "#quests", received.Channel)
	assert.Equal(t, "deck ready", received.Text)
}

func TestSendSlackMessageDisabled(t *testing.T) {
	c := NewClient(config.SlackConfig{Enabled: false}, config.EmailConfig{})
	assert.False(t, c.SendSlackMessage(context.Background(), "#x", "hi"))
}

func TestSendSlackMessageServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "channel_not_found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(config.SlackConfig{Enabled: true, WebhookURL: srv.URL, Channel: "#x"}, config.EmailConfig{})
	assert.False(t, c.SendSlackMessage(context.Background(), "", "hi"))
}

func TestSendEmailDisabled(t *testing.T) {
	c := NewClient(config.SlackConfig{}, config.EmailConfig{Enabled: false})
	res := c.SendEmail(context.Background(), "ana@example.com", "deck", "body")
	assert.False(t, res.Sent)
	assert.Equal(t, "ana@example.com", res.To)
	assert.Contains(t, res.Error, "disabled")
}

func TestSendEmailEmptyRecipient(t *testing.T) {
	c := NewClient(config.SlackConfig{}, config.EmailConfig{Enabled: true, SMTPHost: "smtp.example.com", From: "qb@example.com"})
	res := c.SendEmail(context.Background(), "  ", "deck", "body")
	assert.False(t, res.Sent)
	assert.Equal(t, "empty recipient", res.Error)
}

func TestDeckDigest(t *testing.T) {
	member := domain.Member{Name: "Ana", Email: "ana@example.com", DailyCapacityMinutes: 480}
	deck := domain.MemberQuestDeck{
		Date: "2026-08-28",
		Entries: []domain.DeckEntry{
			{QuestID: "q1", TaskIDs: []string{"t1", "t2"}, TotalEstimatedMinutes: 90},
			{QuestID: "q2", TaskIDs: []string{"t3"}, TotalEstimatedMinutes: 30},
		},
		TotalMinutes: 120,
	}
	text := DeckDigest(member, deck)
	assert.Contains(t, text, "Quest deck for Ana - 2026-08-28")
	assert.Contains(t, text, "quest q1: 2 task(s), ~90 min")
	assert.Contains(t, text, "Total: 120 min of 480 min capacity")
}

func TestDeckDigestEmptyFallsBackToEmail(t *testing.T) {
	member := domain.Member{Email: "bob@example.com"}
	text := DeckDigest(member, domain.MemberQuestDeck{Date: "2026-08-28"})
	assert.Contains(t, text, "bob@example.com")
	assert.Contains(t, text, "No actionable work today.")
}

func TestRunDigest(t *testing.T) {
	text := RunDigest("Acme", domain.RunStats{
		UnlockedQuests: 2,
		TasksAssigned:  5,
		DecksGenerated: 3,
		StaleTasks:     1,
		Warnings:       []string{"member m1 deck exceeds capacity"},
	})
	assert.Contains(t, text, "Questmaster run for Acme")
	assert.Contains(t, text, "2 quest(s) unlocked")
	assert.Contains(t, text, "attention: 1 stale, 0 blocked task(s)")
	assert.Contains(t, text, "member m1 deck exceeds capacity")
}

func TestRunDigestQuietWhenClean(t *testing.T) {
	text := RunDigest("Acme", domain.RunStats{DecksGenerated: 1})
	assert.NotContains(t, text, "attention")
	assert.NotContains(t, text, "Warnings")
}
