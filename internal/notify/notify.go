package notify

import (
	"context"
	"log"
	"net/http"
	"time"

	"questboard/internal/config"
)

// EmailResult reports the outcome of a send attempt. Failures are values, not
// errors, because notification delivery is never fatal to a caller.
type EmailResult struct {
	Sent  bool   `json:"sent"`
	To    string `json:"to,omitempty"`
	Error string `json:"error,omitempty"`
}

// Notifier is the delivery boundary consumed by the questmaster run. Both
// methods are safe to call with feature-disabled configuration.
type Notifier interface {
	SendSlackMessage(ctx context.Context, channel, text string) bool
	SendEmail(ctx context.Context, to, subject, text string) EmailResult
}

const defaultSlackTimeout = 5 * time.Second

// Client delivers via a Slack incoming webhook and plain SMTP.
type Client struct {
	Slack  config.SlackConfig
	Email  config.EmailConfig
	HTTP   *http.Client
	Logger *log.Logger
}

func NewClient(slack config.SlackConfig, email config.EmailConfig) *Client {
	timeout := defaultSlackTimeout
	if slack.TimeoutSec > 0 {
		timeout = time.Duration(slack.TimeoutSec) * time.Second
	}
	return &Client{
		Slack: slack,
		Email: email,
		HTTP:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}
