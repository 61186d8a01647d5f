package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/smtp"
	"strings"
	"time"

	"github.com/saleslens/saleslens/internal/config"
	"github.com/saleslens/saleslens/internal/encoding"
)

// LogChannel is the always-on channel that writes alerts to the
// structured log.
type LogChannel struct{}

func (LogChannel) Name() string { return "log" }

func (LogChannel) Send(_ context.Context, alert Alert) error {
	slog.Info("Alert dispatched",
		"channel", "log",
		"type", alert.Type,
		"priority", strings.ToUpper(string(alert.Priority)),
		"message", alert.Message)
	return nil
}

// SlackChannel posts alerts to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
	client     *http.Client
}

// NewSlackChannel creates a Slack webhook channel.
func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Send(ctx context.Context, alert Alert) error {
	payload, err := encoding.MarshalJSON(map[string]string{
		"text": fmt.Sprintf("%s *[%s] %s*\n%s",
			priorityEmoji(alert.Priority),
			strings.ToUpper(string(alert.Priority)),
			alert.Type,
			alert.Message),
	})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to slack: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook: status %d, body: %s", resp.StatusCode, string(body))
	}
	return nil
}

func priorityEmoji(p Priority) string {
	switch p {
	case PriorityCritical:
		return ":red_circle:"
	case PriorityHigh:
		return ":large_orange_circle:"
	case PriorityMedium:
		return ":large_yellow_circle:"
	case PriorityInfo:
		return ":large_blue_circle:"
	default:
		return ":white_circle:"
	}
}

// EmailChannel sends alerts over SMTP.
type EmailChannel struct {
	host string
	port int
	from string
	to   []string

	// send is swappable for tests.
	send func(addr, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an SMTP email channel.
func NewEmailChannel(cfg config.Notify) *EmailChannel {
	return &EmailChannel{
		host: cfg.SMTPHost,
		port: cfg.SMTPPort,
		from: cfg.SMTPFrom,
		to:   cfg.EmailTo,
		send: func(addr, from string, to []string, msg []byte) error {
			return smtp.SendMail(addr, nil, from, to, msg)
		},
	}
}

func (c *EmailChannel) Name() string { return "email" }

func (c *EmailChannel) Send(_ context.Context, alert Alert) error {
	if len(c.to) == 0 {
		return nil
	}

	subject := fmt.Sprintf("[%s] Sales Analytics Alert: %s",
		strings.ToUpper(string(alert.Priority)), alert.Type)
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		c.from, strings.Join(c.to, ", "), subject, alert.Message)

	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if err := c.send(addr, c.from, c.to, []byte(msg)); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}
