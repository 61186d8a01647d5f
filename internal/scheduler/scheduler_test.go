package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/config"
	"github.com/saleslens/saleslens/internal/crm"
	"github.com/saleslens/saleslens/internal/export"
	"github.com/saleslens/saleslens/internal/notify"
	"github.com/saleslens/saleslens/internal/types"
	"github.com/saleslens/saleslens/internal/writeback"
)

func newTestRunner(t *testing.T, withExport bool) *Runner {
	t.Helper()

	opts := RunnerOptions{
		Source:    crm.NewMockClient(crm.DefaultMockSeed),
		Scorer:    analytics.NewLeadScorer(nil),
		Analyser:  analytics.NewPipelineAnalyser(nil, 500_000),
		Predictor: analytics.NewChurnPredictor(analytics.DefaultChurnThresholds()),
		Notifier:  notify.NewService(config.Notify{}),
	}
	if withExport {
		opts.Exporter = export.NewWriter(t.TempDir())
	}
	return NewRunner(opts)
}

func TestRunFull(t *testing.T) {
	r := newTestRunner(t, false)

	result, err := r.RunFull(context.Background())
	require.NoError(t, err)

	assert.Len(t, result.Leads, 100)
	assert.Len(t, result.Churn, 25)
	assert.Equal(t, 100, result.Distribution.TotalLeads)
	assert.Equal(t, 25, result.RiskSummary.TotalAccounts)
	assert.NotEmpty(t, result.Pipeline.StageSummary)
	assert.Nil(t, result.Writeback)
	assert.Empty(t, result.ExportPaths)

	// Leads come back sorted best first.
	for i := 1; i < len(result.Leads); i++ {
		assert.GreaterOrEqual(t, result.Leads[i-1].Score, result.Leads[i].Score)
	}
}

func TestRunFullRecordsLast(t *testing.T) {
	r := newTestRunner(t, false)
	assert.Nil(t, r.Last())

	result, err := r.RunFull(context.Background())
	require.NoError(t, err)
	assert.Same(t, result, r.Last())
}

func TestRunFullWithWriteback(t *testing.T) {
	source := crm.NewMockClient(crm.DefaultMockSeed)
	r := NewRunner(RunnerOptions{
		Source:           source,
		Scorer:           analytics.NewLeadScorer(nil),
		Analyser:         analytics.NewPipelineAnalyser(nil, 500_000),
		Predictor:        analytics.NewChurnPredictor(analytics.DefaultChurnThresholds()),
		Writeback:        writeback.NewService(source),
		WritebackEnabled: true,
	})

	result, err := r.RunFull(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Writeback)
	assert.Equal(t, len(result.Leads), result.Writeback.LeadScores.Updated)
	assert.Equal(t, len(result.Churn), result.Writeback.ChurnRisk.Updated)

	leads, err := source.Leads(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, leads[0].Has("Lead_Score__c"))
}

func TestRunFullExportsAllFormats(t *testing.T) {
	r := newTestRunner(t, true)

	result, err := r.RunFull(context.Background())
	require.NoError(t, err)

	// Three files each for CSV and Parquet, four for JSON.
	assert.Len(t, result.ExportPaths, 10)
}

func TestRunFullSourceError(t *testing.T) {
	r := newTestRunner(t, false)
	r.opts.Source = failingSource{}

	_, err := r.RunFull(context.Background())
	require.ErrorContains(t, err, "fetch leads")
	assert.Nil(t, r.Last())
}

func TestRunFullRaisesAlerts(t *testing.T) {
	hotLead := types.Record{
		"Id": "00Qhot", "Company": "Acme", "Industry": "Technology",
		"NumberOfEmployees": 10000, "AnnualRevenue": 100_000_000,
		"Website_Visits__c": 60, "Content_Downloads__c": 12,
		"Days_Since_Last_Activity__c": 0, "Email_Opens__c": 30,
	}
	// Escalated cases, terrible CSAT and a long activity gap push the
	// account well past the High threshold.
	riskyAccount := types.Record{
		"Id": "001risky", "Name": "Wobbly Ltd", "AnnualRevenue": 80000,
		"LastActivityDate": time.Now().AddDate(0, 0, -200).Format("2006-01-02"),
	}
	var cases []types.Record
	for i := 0; i < 10; i++ {
		cases = append(cases, types.Record{
			"Id": "500x", "AccountId": "001risky", "Priority": "High", "Customer_Satisfaction__c": 1,
		})
	}

	r := newTestRunner(t, false)
	r.opts.Source = staticSource{leads: []types.Record{hotLead}, accounts: []types.Record{riskyAccount}, cases: cases}

	_, err := r.RunFull(context.Background())
	require.NoError(t, err)

	byType := map[string]notify.Alert{}
	for _, a := range r.opts.Notifier.History(0) {
		byType[a.Type] = a
	}

	require.Contains(t, byType, "hot_leads")
	assert.Equal(t, notify.PriorityHigh, byType["hot_leads"].Priority)
	require.Contains(t, byType, "churn_risk")
	assert.Contains(t, byType["churn_risk"].Message, "high churn risk")
	// No opportunities at all rates the pipeline far below healthy.
	require.Contains(t, byType, "pipeline_health")
}

func TestSendSummaryUsesLastRun(t *testing.T) {
	r := newTestRunner(t, false)

	_, err := r.RunFull(context.Background())
	require.NoError(t, err)
	before := len(r.opts.Notifier.History(0))

	require.NoError(t, r.SendSummary(context.Background()))

	history := r.opts.Notifier.History(0)
	require.Len(t, history, before+1)
	last := history[len(history)-1]
	assert.Equal(t, "daily_summary", last.Type)
	assert.Contains(t, last.Message, "Total leads scored: 100")
}

func TestSendSummaryRunsAnalysisWhenCold(t *testing.T) {
	r := newTestRunner(t, false)

	require.NoError(t, r.SendSummary(context.Background()))
	assert.NotNil(t, r.Last())
}

func TestNewSchedulerRegistersJobs(t *testing.T) {
	r := newTestRunner(t, false)

	s, err := New(r, "0 7 * * *", "0 17 * * *")
	require.NoError(t, err)
	assert.Equal(t, 2, s.Jobs())

	s, err = New(r, "0 7 * * *", "")
	require.NoError(t, err)
	assert.Equal(t, 1, s.Jobs())
}

func TestNewSchedulerInvalidSpec(t *testing.T) {
	r := newTestRunner(t, false)

	_, err := New(r, "not a cron spec", "")
	assert.ErrorContains(t, err, "invalid analysis schedule")
}

func TestSchedulerRunsJob(t *testing.T) {
	var runs atomic.Int32
	r := NewRunner(RunnerOptions{
		Source:    countingSource{MockClient: crm.NewMockClient(1), calls: &runs},
		Scorer:    analytics.NewLeadScorer(nil),
		Analyser:  analytics.NewPipelineAnalyser(nil, 500_000),
		Predictor: analytics.NewChurnPredictor(analytics.DefaultChurnThresholds()),
	})

	s, err := New(r, "@every 100ms", "")
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return runs.Load() > 0
	}, 5*time.Second, 20*time.Millisecond)
}

type staticSource struct {
	leads, opps, accounts, cases []types.Record
}

func (s staticSource) Leads(context.Context, int) ([]types.Record, error)         { return s.leads, nil }
func (s staticSource) Opportunities(context.Context, int) ([]types.Record, error) { return s.opps, nil }
func (s staticSource) Accounts(context.Context, int) ([]types.Record, error)      { return s.accounts, nil }
func (s staticSource) Cases(context.Context, int) ([]types.Record, error)         { return s.cases, nil }
func (s staticSource) Activities(context.Context, int) ([]types.Record, error)    { return nil, nil }

func (s staticSource) UpdateRecord(context.Context, string, string, types.Record) error {
	return nil
}

func (s staticSource) CreateRecord(context.Context, string, types.Record) (string, error) {
	return "", nil
}

func (s staticSource) Close() error { return nil }

type failingSource struct {
	crm.DataSource
}

func (failingSource) Leads(context.Context, int) ([]types.Record, error) {
	return nil, errors.New("connection refused")
}

type countingSource struct {
	*crm.MockClient
	calls *atomic.Int32
}

func (c countingSource) Leads(ctx context.Context, limit int) ([]types.Record, error) {
	c.calls.Add(1)
	return c.MockClient.Leads(ctx, limit)
}
