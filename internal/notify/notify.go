// Package notify dispatches analytics alerts through configured
// channels: structured logs always, plus Slack webhooks and SMTP email
// when configured.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/config"
)

// Priority ranks an alert for channel formatting.
type Priority string

const (
	PriorityInfo     Priority = "info"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Alert is a single analytics finding worth telling a human about.
type Alert struct {
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Priority  Priority  `json:"priority"`
	Timestamp time.Time `json:"timestamp"`
}

// Channel delivers alerts to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) error
}

// Service fans alerts out to all configured channels and keeps a
// bounded in-memory history for the alerts endpoint.
type Service struct {
	channels []Channel

	mu           sync.RWMutex
	history      []Alert
	historyLimit int

	now func() time.Time
}

// NewService builds a service from configuration. The log channel is
// always on; Slack and email join when configured.
func NewService(cfg config.Notify) *Service {
	channels := []Channel{LogChannel{}}
	if cfg.SlackWebhookURL != "" {
		channels = append(channels, NewSlackChannel(cfg.SlackWebhookURL))
	}
	if cfg.SMTPHost != "" && len(cfg.EmailTo) > 0 {
		channels = append(channels, NewEmailChannel(cfg))
	}

	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = 500
	}
	return &Service{
		channels:     channels,
		historyLimit: limit,
		now:          time.Now,
	}
}

// Channels returns the names of the active channels.
func (s *Service) Channels() []string {
	names := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		names = append(names, ch.Name())
	}
	return names
}

// SendAlert stamps, records and dispatches an alert. Channel failures
// are logged but never abort delivery to the remaining channels.
func (s *Service) SendAlert(ctx context.Context, alert Alert) {
	if alert.Priority == "" {
		alert.Priority = PriorityInfo
	}
	alert.Timestamp = s.now().UTC()

	s.mu.Lock()
	s.history = append(s.history, alert)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	s.mu.Unlock()

	for _, ch := range s.channels {
		if err := ch.Send(ctx, alert); err != nil {
			slog.Error("Failed to send alert", "channel", ch.Name(), "type", alert.Type, "error", err)
		}
	}
}

// History returns up to limit most recent alerts, oldest first.
func (s *Service) History(limit int) []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Alert, n)
	copy(out, s.history[len(s.history)-n:])
	return out
}

// SummaryInput carries the analysis results the daily summary reports
// on. Any section may be absent.
type SummaryInput struct {
	LeadsScored  int
	Distribution *analytics.Distribution
	Pipeline     *analytics.PipelineReport
	Churn        *analytics.RiskSummary
}

// SendDailySummary formats and dispatches the daily analytics summary,
// returning the rendered text.
func (s *Service) SendDailySummary(ctx context.Context, in SummaryInput) string {
	lines := []string{
		"=== Sales Analytics Daily Summary ===",
		fmt.Sprintf("Generated: %s", s.now().UTC().Format("2006-01-02 15:04 MST")),
		"",
	}

	if in.Distribution != nil {
		lines = append(lines,
			"--- Lead Scoring ---",
			fmt.Sprintf("Total leads scored: %d", in.LeadsScored),
			fmt.Sprintf("Average score: %v", in.Distribution.AverageScore),
			fmt.Sprintf("Critical priority: %d", in.Distribution.PriorityBreakdown[analytics.PriorityCritical]),
			fmt.Sprintf("High priority: %d", in.Distribution.PriorityBreakdown[analytics.PriorityHigh]),
			"")
	}

	if in.Pipeline != nil {
		lines = append(lines,
			"--- Pipeline Health ---",
			fmt.Sprintf("Health score: %v/100 (%s)", in.Pipeline.HealthScore.Score, in.Pipeline.HealthScore.Rating),
			fmt.Sprintf("Risks identified: %d", len(in.Pipeline.RiskIndicators)),
			"")
	}

	if in.Churn != nil {
		lines = append(lines,
			"--- Churn Risk ---",
			fmt.Sprintf("Total accounts: %d", in.Churn.TotalAccounts),
			fmt.Sprintf("High risk: %d", in.Churn.RiskBreakdown[analytics.RiskHigh]),
			fmt.Sprintf("Revenue at risk: £%.0f", in.Churn.TotalRevenueAtRisk),
			"")
	}

	if in.Pipeline != nil && len(in.Pipeline.Recommendations) > 0 {
		lines = append(lines, "--- Recommendations ---")
		for _, rec := range in.Pipeline.Recommendations {
			lines = append(lines, "* "+rec)
		}
	}

	summary := strings.Join(lines, "\n")
	s.SendAlert(ctx, Alert{
		Type:     "daily_summary",
		Message:  summary,
		Priority: PriorityInfo,
	})
	return summary
}
