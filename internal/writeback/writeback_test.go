package writeback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/crm"
	"github.com/saleslens/saleslens/internal/types"
)

// flakySource wraps the mock client and fails writes for chosen IDs.
type flakySource struct {
	crm.DataSource
	failIDs map[string]bool
	created []types.Record
}

func (f *flakySource) UpdateRecord(ctx context.Context, object, id string, fields types.Record) error {
	if f.failIDs[id] {
		return errors.New("simulated API failure")
	}
	return f.DataSource.UpdateRecord(ctx, object, id, fields)
}

func (f *flakySource) CreateRecord(ctx context.Context, object string, fields types.Record) (string, error) {
	if f.failIDs[fields.Str("WhoId", "")] || f.failIDs[fields.Str("WhatId", "")] {
		return "", errors.New("simulated API failure")
	}
	f.created = append(f.created, fields)
	return f.DataSource.CreateRecord(ctx, object, fields)
}

func scoredLeads(t *testing.T, source crm.DataSource, n int) []analytics.ScoredLead {
	t.Helper()
	leads, err := source.Leads(context.Background(), n)
	require.NoError(t, err)
	return analytics.NewLeadScorer(nil).ScoreLeads(leads)
}

func TestUpdateLeadScores(t *testing.T) {
	mock := crm.NewMockClient(crm.DefaultMockSeed)
	svc := NewService(mock)
	ctx := context.Background()

	scored := scoredLeads(t, mock, 5)
	result := svc.UpdateLeadScores(ctx, scored)

	assert.Equal(t, 5, result.Updated)
	assert.Equal(t, 0, result.Errors)

	leads, err := mock.Leads(ctx, 0)
	require.NoError(t, err)
	stamped := 0
	for _, lead := range leads {
		if lead.Has("Lead_Score__c") {
			stamped++
			assert.True(t, lead.Has("Priority__c"))
			assert.True(t, lead.Has("Last_Scored_Date__c"))
		}
	}
	assert.Equal(t, 5, stamped)
}

func TestUpdateLeadScoresCountsErrors(t *testing.T) {
	mock := crm.NewMockClient(crm.DefaultMockSeed)
	scored := scoredLeads(t, mock, 4)

	flaky := &flakySource{
		DataSource: mock,
		failIDs:    map[string]bool{scored[0].Lead.Str("Id", ""): true},
	}
	result := NewService(flaky).UpdateLeadScores(context.Background(), scored)

	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 1, result.Errors)
}

func TestUpdateChurnRisk(t *testing.T) {
	mock := crm.NewMockClient(crm.DefaultMockSeed)
	svc := NewService(mock)
	ctx := context.Background()

	accounts, err := mock.Accounts(ctx, 3)
	require.NoError(t, err)
	cases, err := mock.Cases(ctx, 0)
	require.NoError(t, err)
	churn := analytics.NewChurnPredictor(analytics.ChurnThresholds{}).Predict(accounts, cases, nil)

	result := svc.UpdateChurnRisk(ctx, churn)
	assert.Equal(t, 3, result.Updated)
	assert.Equal(t, 0, result.Errors)

	updated, err := mock.Accounts(ctx, 0)
	require.NoError(t, err)
	flagged := 0
	for _, acct := range updated {
		if acct.Has("Churn_Risk_Score__c") {
			flagged++
			assert.True(t, acct.Has("Churn_Risk_Level__c"))
			assert.True(t, acct.Has("Last_Churn_Analysis__c"))
		}
	}
	assert.Equal(t, 3, flagged)
}

func TestCreateFollowUpTasks(t *testing.T) {
	mock := crm.NewMockClient(crm.DefaultMockSeed)
	flaky := &flakySource{DataSource: mock, failIDs: map[string]bool{}}
	svc := NewService(flaky)

	leads := []analytics.ScoredLead{
		{
			Lead: types.Record{
				"Id": "00Q1", "FirstName": "Jane", "LastName": "Doe",
				"Company": "Acme Corp", "LeadSource": "Web",
			},
			Score:    91.5,
			Priority: analytics.PriorityCritical,
		},
		{
			Lead:     types.Record{"Id": "00Q2", "Company": "Globex Industries"},
			Score:    72.0,
			Priority: analytics.PriorityHigh,
		},
	}

	result := svc.CreateFollowUpTasks(context.Background(), leads)
	assert.Equal(t, 2, result.Created)
	assert.Equal(t, 0, result.Errors)

	require.Len(t, flaky.created, 2)
	critical := flaky.created[0]
	assert.Equal(t, "00Q1", critical.Str("WhoId", ""))
	assert.Contains(t, critical.Str("Subject", ""), "Critical-priority lead")
	assert.Contains(t, critical.Str("Description", ""), "Company: Acme Corp")
	assert.Equal(t, "High", critical.Str("Priority", ""))
	assert.Equal(t, "Not Started", critical.Str("Status", ""))

	assert.Equal(t, "Normal", flaky.created[1].Str("Priority", ""))
}

func TestCreateInterventionTasks(t *testing.T) {
	mock := crm.NewMockClient(crm.DefaultMockSeed)
	flaky := &flakySource{DataSource: mock, failIDs: map[string]bool{}}
	svc := NewService(flaky)

	accounts := []analytics.ChurnAccount{{
		Account:     types.Record{"Id": "001X", "Name": "Umbrella Ltd"},
		Score:       0.82,
		Level:       analytics.RiskHigh,
		RiskFactors: []string{"High support case volume or escalations"},
	}}

	result := svc.CreateInterventionTasks(context.Background(), accounts)
	assert.Equal(t, 1, result.Created)

	require.Len(t, flaky.created, 1)
	task := flaky.created[0]
	assert.Equal(t, "001X", task.Str("WhatId", ""))
	assert.Contains(t, task.Str("Subject", ""), "Umbrella Ltd")
	assert.Contains(t, task.Str("Description", ""), "- High support case volume")
	assert.Equal(t, "High", task.Str("Priority", ""))
}

func TestActionableSubsetFilters(t *testing.T) {
	scored := []analytics.ScoredLead{
		{Lead: types.Record{"Id": "00Q1"}, Priority: analytics.PriorityCritical},
		{Lead: types.Record{"Id": "00Q2"}, Priority: analytics.PriorityHigh},
		{Lead: types.Record{"Id": "00Q3"}, Priority: analytics.PriorityMedium},
		{Lead: types.Record{"Id": "00Q4"}, Priority: analytics.PriorityLow},
	}
	leads := ActionableLeads(scored)
	require.Len(t, leads, 2)
	assert.Equal(t, "00Q1", leads[0].Lead.Str("Id", ""))
	assert.Equal(t, "00Q2", leads[1].Lead.Str("Id", ""))

	churn := []analytics.ChurnAccount{
		{Account: types.Record{"Id": "001A"}, Level: analytics.RiskHigh},
		{Account: types.Record{"Id": "001B"}, Level: analytics.RiskMedium},
		{Account: types.Record{"Id": "001C"}, Level: analytics.RiskLow},
	}
	accounts := HighRiskAccounts(churn)
	require.Len(t, accounts, 1)
	assert.Equal(t, "001A", accounts[0].Account.Str("Id", ""))
}

func TestRunFullTargetsHighPrioritySubsets(t *testing.T) {
	mock := crm.NewMockClient(crm.DefaultMockSeed)
	flaky := &flakySource{DataSource: mock, failIDs: map[string]bool{}}
	svc := NewService(flaky)
	ctx := context.Background()

	scored := []analytics.ScoredLead{
		{Lead: types.Record{"Id": "00Q1"}, Score: 95, Priority: analytics.PriorityCritical},
		{Lead: types.Record{"Id": "00Q2"}, Score: 70, Priority: analytics.PriorityHigh},
		{Lead: types.Record{"Id": "00Q3"}, Score: 20, Priority: analytics.PriorityLow},
	}
	churn := []analytics.ChurnAccount{
		{Account: types.Record{"Id": "001A", "Name": "A"}, Score: 0.9, Level: analytics.RiskHigh,
			RiskFactors: []string{"Low engagement - no recent activity"}},
		{Account: types.Record{"Id": "001B", "Name": "B"}, Score: 0.2, Level: analytics.RiskLow,
			RiskFactors: []string{"No significant risk factors identified"}},
	}

	result := svc.RunFull(ctx, scored, churn)

	// Score updates cover everything; task creation only the hot subsets.
	assert.Equal(t, 3, result.LeadScores.Updated+result.LeadScores.Errors)
	assert.Equal(t, 2, result.ChurnRisk.Updated+result.ChurnRisk.Errors)
	assert.Equal(t, 2, result.FollowUpTasks.Created)
	assert.Equal(t, 1, result.InterventionTasks.Created)
}
