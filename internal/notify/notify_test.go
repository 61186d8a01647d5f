package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/config"
)

type recordingChannel struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingChannel) Name() string { return "recording" }

func (r *recordingChannel) Send(_ context.Context, alert Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.alerts = append(r.alerts, alert)
	return nil
}

func newTestService(channels ...Channel) *Service {
	return &Service{
		channels:     channels,
		historyLimit: 5,
		now:          func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func TestSendAlertReachesAllChannels(t *testing.T) {
	first := &recordingChannel{}
	second := &recordingChannel{}
	svc := newTestService(first, second)

	svc.SendAlert(context.Background(), Alert{Type: "pipeline_risk", Message: "3 deals stalled", Priority: PriorityHigh})

	require.Len(t, first.alerts, 1)
	require.Len(t, second.alerts, 1)
	assert.Equal(t, "pipeline_risk", first.alerts[0].Type)
	assert.False(t, first.alerts[0].Timestamp.IsZero())
}

func TestSendAlertChannelFailureDoesNotBlockOthers(t *testing.T) {
	failing := &recordingChannel{err: errors.New("webhook down")}
	working := &recordingChannel{}
	svc := newTestService(failing, working)

	svc.SendAlert(context.Background(), Alert{Type: "churn_risk", Message: "5 accounts at high risk"})

	require.Len(t, working.alerts, 1)
	// Missing priority defaults to info.
	assert.Equal(t, PriorityInfo, working.alerts[0].Priority)
}

func TestHistoryBounded(t *testing.T) {
	svc := newTestService(&recordingChannel{})
	for i := 0; i < 8; i++ {
		svc.SendAlert(context.Background(), Alert{Type: fmt.Sprintf("alert-%d", i)})
	}

	history := svc.History(0)
	require.Len(t, history, 5)
	assert.Equal(t, "alert-3", history[0].Type)
	assert.Equal(t, "alert-7", history[4].Type)

	recent := svc.History(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "alert-6", recent[0].Type)
}

func TestSendDailySummary(t *testing.T) {
	rec := &recordingChannel{}
	svc := newTestService(rec)

	summary := svc.SendDailySummary(context.Background(), SummaryInput{
		LeadsScored: 100,
		Distribution: &analytics.Distribution{
			AverageScore: 48.2,
			PriorityBreakdown: map[analytics.Priority]int{
				analytics.PriorityCritical: 4,
				analytics.PriorityHigh:     12,
			},
		},
		Pipeline: &analytics.PipelineReport{
			HealthScore:     analytics.HealthScore{Score: 62.5, Rating: "Good"},
			RiskIndicators:  []analytics.RiskIndicator{{Type: "Stalled Deals"}},
			Recommendations: []string{"Review 3 stalled deals - consider re-engagement campaigns or pipeline clean-up."},
		},
		Churn: &analytics.RiskSummary{
			TotalAccounts:      25,
			RiskBreakdown:      map[analytics.RiskLevel]int{analytics.RiskHigh: 5},
			TotalRevenueAtRisk: 1_500_000,
		},
	})

	assert.Contains(t, summary, "Total leads scored: 100")
	assert.Contains(t, summary, "Critical priority: 4")
	assert.Contains(t, summary, "Health score: 62.5/100 (Good)")
	assert.Contains(t, summary, "Risks identified: 1")
	assert.Contains(t, summary, "High risk: 5")
	assert.Contains(t, summary, "Revenue at risk: £1500000")
	assert.Contains(t, summary, "--- Recommendations ---")

	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "daily_summary", rec.alerts[0].Type)
	assert.Equal(t, PriorityInfo, rec.alerts[0].Priority)
}

func TestSendDailySummarySkipsMissingSections(t *testing.T) {
	svc := newTestService(&recordingChannel{})

	summary := svc.SendDailySummary(context.Background(), SummaryInput{})

	assert.Contains(t, summary, "Daily Summary")
	assert.NotContains(t, summary, "Lead Scoring")
	assert.NotContains(t, summary, "Pipeline Health")
	assert.NotContains(t, summary, "Churn Risk")
}

func TestNewServiceChannelSelection(t *testing.T) {
	svc := NewService(config.Notify{})
	assert.Equal(t, []string{"log"}, svc.Channels())

	svc = NewService(config.Notify{
		SlackWebhookURL: "https://hooks.slack.com/services/T00/B00/xyz",
		SMTPHost:        "smtp.example.com",
		SMTPPort:        587,
		SMTPFrom:        "alerts@example.com",
		EmailTo:         []string{"team@example.com"},
	})
	assert.Equal(t, []string{"log", "slack", "email"}, svc.Channels())
}

func TestSlackChannelSend(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, jsonDecode(r, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ch := NewSlackChannel(server.URL)
	err := ch.Send(context.Background(), Alert{
		Type:     "pipeline_risk",
		Message:  "Largest deal represents 62% of pipeline",
		Priority: PriorityCritical,
	})

	require.NoError(t, err)
	assert.Contains(t, got["text"], "[CRITICAL] pipeline_risk")
	assert.Contains(t, got["text"], ":red_circle:")
}

func TestSlackChannelNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer server.Close()

	err := NewSlackChannel(server.URL).Send(context.Background(), Alert{Type: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
}

func TestEmailChannelSend(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	ch := &EmailChannel{
		host: "smtp.example.com",
		port: 587,
		from: "alerts@example.com",
		to:   []string{"a@example.com", "b@example.com"},
		send: func(addr, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		},
	}

	err := ch.Send(context.Background(), Alert{
		Type:     "churn_risk",
		Message:  "5 accounts flagged",
		Priority: PriorityHigh,
	})

	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "alerts@example.com", gotFrom)
	assert.Len(t, gotTo, 2)
	assert.Contains(t, string(gotMsg), "Subject: [HIGH] Sales Analytics Alert: churn_risk")
	assert.Contains(t, string(gotMsg), "5 accounts flagged")
}

func jsonDecode(r *http.Request, out any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
