package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type slackPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// SendSlackMessage posts to the configured incoming webhook. Returns false
// without error when Slack is disabled or delivery fails.
func (c *Client) SendSlackMessage(ctx context.Context, channel, text string) bool {
	if !c.Slack.Enabled || strings.TrimSpace(c.Slack.WebhookURL) == "" {
		return false
	}
	if channel == "" {
		channel = c.Slack.Channel
	}
	body, err := json.Marshal(slackPayload{Channel: channel, Text: text})
	if err != nil {
		c.logger().Printf("notify: marshal slack payload: %v", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Slack.WebhookURL, bytes.NewReader(body))
	if err != nil {
		c.logger().Printf("notify: build slack request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		c.logger().Printf("notify: slack delivery to %s failed: %v", channel, err)
		return false
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		c.logger().Printf("notify: slack delivery to %s failed: %s", channel, fmt.Sprintf("status %d: %s", res.StatusCode, strings.TrimSpace(string(respBody))))
		return false
	}
	return true
}
