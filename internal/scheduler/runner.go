// Package scheduler runs the recurring analysis and summary jobs. The
// Runner holds the full analysis cycle; Scheduler drives it on cron
// schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/crm"
	"github.com/saleslens/saleslens/internal/export"
	"github.com/saleslens/saleslens/internal/notify"
	"github.com/saleslens/saleslens/internal/writeback"
)

// exportFormats is every format the scheduled export refresh produces.
var exportFormats = []export.Format{export.FormatCSV, export.FormatJSON, export.FormatParquet}

// RunResult is the outcome of one full analysis cycle.
type RunResult struct {
	StartedAt    time.Time                `json:"started_at"`
	DurationMS   int64                    `json:"duration_ms"`
	Leads        []analytics.ScoredLead   `json:"leads"`
	Distribution analytics.Distribution   `json:"distribution"`
	Pipeline     analytics.PipelineReport `json:"pipeline"`
	Churn        []analytics.ChurnAccount `json:"churn"`
	RiskSummary  analytics.RiskSummary    `json:"risk_summary"`
	Writeback    *writeback.FullResult    `json:"writeback,omitempty"`
	ExportPaths  []string                 `json:"export_paths,omitempty"`
}

// RunnerOptions wires the collaborators a Runner needs. Writeback and
// Exporter are optional.
type RunnerOptions struct {
	Source           crm.DataSource
	Scorer           *analytics.LeadScorer
	Analyser         *analytics.PipelineAnalyser
	Predictor        *analytics.ChurnPredictor
	Notifier         *notify.Service
	Writeback        *writeback.Service
	Exporter         *export.Writer
	WritebackEnabled bool
}

// Runner executes the full analysis cycle: fetch CRM data, run the three
// engines, raise alerts on critical findings, then write back and export
// when configured.
type Runner struct {
	opts RunnerOptions
	now  func() time.Time

	mu   sync.RWMutex
	last *RunResult
}

// NewRunner creates a runner over the given collaborators.
func NewRunner(opts RunnerOptions) *Runner {
	return &Runner{opts: opts, now: time.Now}
}

// Last returns the most recent completed run, or nil before the first.
func (r *Runner) Last() *RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// RunFull performs one complete analysis cycle and records it as the
// latest result.
func (r *Runner) RunFull(ctx context.Context) (*RunResult, error) {
	started := r.now()
	slog.Info("Starting full analysis run")

	leads, err := r.opts.Source.Leads(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch leads: %w", err)
	}
	opps, err := r.opts.Source.Opportunities(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch opportunities: %w", err)
	}
	accounts, err := r.opts.Source.Accounts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch accounts: %w", err)
	}
	cases, err := r.opts.Source.Cases(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("fetch cases: %w", err)
	}

	result := &RunResult{
		StartedAt:    started,
		Leads:        r.opts.Scorer.ScoreLeads(leads),
		Distribution: r.opts.Scorer.ScoreDistribution(leads),
		Pipeline:     r.opts.Analyser.Analyse(opps),
		Churn:        r.opts.Predictor.Predict(accounts, cases, opps),
		RiskSummary:  r.opts.Predictor.RiskSummary(accounts, cases, opps),
	}

	r.raiseAlerts(ctx, result)

	if r.opts.WritebackEnabled && r.opts.Writeback != nil {
		wb := r.opts.Writeback.RunFull(ctx, result.Leads, result.Churn)
		result.Writeback = &wb
	}

	if r.opts.Exporter != nil {
		result.ExportPaths = r.export(*result)
	}

	result.DurationMS = r.now().Sub(started).Milliseconds()

	r.mu.Lock()
	r.last = result
	r.mu.Unlock()

	slog.Info("Full analysis run complete",
		"leads", len(result.Leads),
		"accounts", len(result.Churn),
		"health_score", result.Pipeline.HealthScore.Score,
		"duration_ms", result.DurationMS)
	return result, nil
}

// Export writes the given result to disk in every supported format.
func (r *Runner) export(result RunResult) []string {
	snap := export.Snapshot{
		GeneratedAt: result.StartedAt,
		Leads:       result.Leads,
		Churn:       result.Churn,
		Funnel:      funnelFromSummary(result.Pipeline.StageSummary),
		Pipeline:    result.Pipeline,
	}

	var paths []string
	for _, format := range exportFormats {
		p, err := r.opts.Exporter.Write(snap, format)
		if err != nil {
			slog.Error("Export failed", "format", format, "error", err)
			continue
		}
		paths = append(paths, p...)
	}
	return paths
}

func funnelFromSummary(summary []analytics.StageSummary) []analytics.FunnelRow {
	rows := make([]analytics.FunnelRow, 0, len(summary))
	for _, s := range summary {
		rows = append(rows, analytics.FunnelRow{
			Stage:      s.Stage,
			Count:      s.Count,
			TotalValue: s.TotalValue,
			AvgValue:   s.AvgValue,
		})
	}
	return rows
}

// raiseAlerts sends notifications for findings that need same-day action.
func (r *Runner) raiseAlerts(ctx context.Context, result *RunResult) {
	if r.opts.Notifier == nil {
		return
	}

	if critical := result.Distribution.PriorityBreakdown[analytics.PriorityCritical]; critical > 0 {
		r.opts.Notifier.SendAlert(ctx, notify.Alert{
			Type:     "hot_leads",
			Priority: notify.PriorityHigh,
			Message:  fmt.Sprintf("%d critical-priority leads need immediate follow-up", critical),
		})
	}

	if highRisk := result.RiskSummary.RiskBreakdown[analytics.RiskHigh]; highRisk > 0 {
		priority := notify.PriorityHigh
		if highRisk > 5 {
			priority = notify.PriorityCritical
		}
		r.opts.Notifier.SendAlert(ctx, notify.Alert{
			Type:     "churn_risk",
			Priority: priority,
			Message: fmt.Sprintf("%d accounts at high churn risk (£%.0f revenue at risk)",
				highRisk, result.RiskSummary.TotalRevenueAtRisk),
		})
	}

	if health := result.Pipeline.HealthScore; health.Score < 40 {
		r.opts.Notifier.SendAlert(ctx, notify.Alert{
			Type:     "pipeline_health",
			Priority: notify.PriorityHigh,
			Message:  fmt.Sprintf("Pipeline health is %s (%.1f/100)", health.Rating, health.Score),
		})
	}
}

// SendSummary dispatches the daily summary built from the latest run,
// executing a fresh run first if none has completed yet.
func (r *Runner) SendSummary(ctx context.Context) error {
	if r.opts.Notifier == nil {
		return nil
	}

	result := r.Last()
	if result == nil {
		var err error
		result, err = r.RunFull(ctx)
		if err != nil {
			return err
		}
	}

	r.opts.Notifier.SendDailySummary(ctx, notify.SummaryInput{
		LeadsScored:  len(result.Leads),
		Distribution: &result.Distribution,
		Pipeline:     &result.Pipeline,
		Churn:        &result.RiskSummary,
	})
	return nil
}
