package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// jobTimeout bounds a single scheduled run, CRM fetches included.
const jobTimeout = 10 * time.Minute

// Scheduler drives the runner on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
}

// New creates a scheduler with the analysis and summary jobs registered.
// Either spec may be empty to disable that job.
func New(runner *Runner, analysisSpec, summarySpec string) (*Scheduler, error) {
	c := cron.New(cron.WithLogger(cronLogger{}), cron.WithChain(cron.Recover(cronLogger{})))
	s := &Scheduler{cron: c, runner: runner}

	if analysisSpec != "" {
		if _, err := c.AddFunc(analysisSpec, s.runAnalysis); err != nil {
			return nil, fmt.Errorf("invalid analysis schedule %q: %w", analysisSpec, err)
		}
	}
	if summarySpec != "" {
		if _, err := c.AddFunc(summarySpec, s.runSummary); err != nil {
			return nil, fmt.Errorf("invalid summary schedule %q: %w", summarySpec, err)
		}
	}
	return s, nil
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("Scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	slog.Info("Scheduler stopped")
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) runAnalysis() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if _, err := s.runner.RunFull(ctx); err != nil {
		slog.Error("Scheduled analysis run failed", "error", err)
	}
}

func (s *Scheduler) runSummary() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	if err := s.runner.SendSummary(ctx); err != nil {
		slog.Error("Scheduled summary failed", "error", err)
	}
}

// cronLogger adapts slog to the cron logging interface.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error(msg, append([]any{"error", err}, keysAndValues...)...)
}
