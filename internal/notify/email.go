package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SendEmail delivers over plain SMTP. A disabled email config yields a
// non-sent result, never an error.
func (c *Client) SendEmail(ctx context.Context, to, subject, text string) EmailResult {
	if !c.Email.Enabled || c.Email.SMTPHost == "" {
		return EmailResult{Sent: false, To: to, Error: "email notifications disabled"}
	}
	if strings.TrimSpace(to) == "" {
		return EmailResult{Sent: false, Error: "empty recipient"}
	}
	port := c.Email.SMTPPort
	if port == 0 {
		port = 587
	}
	addr := fmt.Sprintf("%s:%d", c.Email.SMTPHost, port)
	msg := strings.Join([]string{
		"From: " + c.Email.From,
		"To: " + to,
		"Subject: " + subject,
		"",
		text,
	}, "\r\n")
	if err := smtp.SendMail(addr, nil, c.Email.From, []string{to}, []byte(msg)); err != nil {
		c.logger().Printf("notify: email to %s failed: %v", to, err)
		return EmailResult{Sent: false, To: to, Error: err.Error()}
	}
	return EmailResult{Sent: true, To: to}
}
