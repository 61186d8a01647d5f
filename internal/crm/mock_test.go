package crm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleslens/saleslens/internal/types"
)

func TestMockClientDatasetSizes(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	ctx := context.Background()

	leads, err := mc.Leads(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, leads, defaultMockLeads)

	opps, err := mc.Opportunities(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, opps, defaultMockOpportunities)

	accounts, err := mc.Accounts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, accounts, defaultMockAccounts)

	cases, err := mc.Cases(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, cases, defaultMockCases)

	activities, err := mc.Activities(ctx, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, activities)
}

func TestMockClientLimit(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)

	leads, err := mc.Leads(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, leads, 10)
}

func TestMockLeadShape(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	leads, err := mc.Leads(context.Background(), 0)
	require.NoError(t, err)

	for _, lead := range leads {
		id := lead.Str("Id", "")
		assert.True(t, strings.HasPrefix(id, "00Q"), "lead id %q", id)
		assert.Len(t, id, 18)
		assert.NotEmpty(t, lead.Str("Company", ""))
		assert.NotEmpty(t, lead.Str("Email", ""))
		assert.True(t, lead.Has("Website_Visits__c"))
		assert.True(t, lead.Has("Email_Opens__c"))
		assert.True(t, lead.Has("Days_Since_Last_Activity__c"))
		assert.GreaterOrEqual(t, lead.Float("NumberOfEmployees", -1), 1.0)
	}
}

func TestMockOpportunityConsistency(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	ctx := context.Background()

	accounts, err := mc.Accounts(ctx, 0)
	require.NoError(t, err)
	accountIDs := make(map[string]bool, len(accounts))
	for _, a := range accounts {
		accountIDs[a.Str("Id", "")] = true
	}

	opps, err := mc.Opportunities(ctx, 0)
	require.NoError(t, err)
	for _, opp := range opps {
		stage := opp.Str("StageName", "")
		closed := strings.HasPrefix(stage, "Closed")
		assert.Equal(t, closed, opp.Bool("IsClosed", false), "stage %q", stage)
		assert.Equal(t, stage == "Closed Won", opp.Bool("IsWon", false))
		assert.True(t, accountIDs[opp.Str("AccountId", "")], "opportunity references unknown account")
		if closed {
			assert.False(t, opp.Has("NextStep"))
		}
	}
}

func TestMockCasesConcentrateOnAtRiskAccounts(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	cases, err := mc.Cases(context.Background(), 0)
	require.NoError(t, err)

	highPriority := 0
	for _, c := range cases {
		switch c.Str("Priority", "") {
		case "High", "Critical":
			highPriority++
		}
		if c.Str("Status", "") == "Closed" {
			assert.True(t, c.Bool("IsClosed", false))
			assert.True(t, c.Has("Customer_Satisfaction__c"))
		} else {
			assert.False(t, c.Has("Customer_Satisfaction__c"))
		}
	}
	// 60% of cases target the disengaged cohort with escalated priorities.
	assert.Greater(t, highPriority, 0)
}

func TestMockSnapshotIsolation(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	ctx := context.Background()

	leads, err := mc.Leads(ctx, 1)
	require.NoError(t, err)
	leads[0]["Company"] = "Mutated Inc"

	again, err := mc.Leads(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, "Mutated Inc", again[0].Str("Company", ""))
}

func TestMockUpdateRecord(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	ctx := context.Background()

	leads, err := mc.Leads(ctx, 1)
	require.NoError(t, err)
	id := leads[0].Str("Id", "")

	err = mc.UpdateRecord(ctx, "Lead", id, types.Record{"Lead_Score__c": 87.5, "Rating": "Hot"})
	require.NoError(t, err)

	updated, err := mc.Leads(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 87.5, updated[0].Float("Lead_Score__c", 0))
	assert.Equal(t, "Hot", updated[0].Str("Rating", ""))
}

func TestMockUpdateRecordErrors(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	ctx := context.Background()

	err := mc.UpdateRecord(ctx, "Lead", "missing-id", types.Record{"Rating": "Hot"})
	assert.Error(t, err)

	err = mc.UpdateRecord(ctx, "Widget", "any", types.Record{})
	assert.ErrorContains(t, err, "unknown object type")
}

func TestMockCreateRecord(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	ctx := context.Background()

	id, err := mc.CreateRecord(ctx, "Task", types.Record{
		"Subject":  "Follow up: high churn risk",
		"Priority": "High",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(id, "NEW"))

	activities, err := mc.Activities(ctx, 0)
	require.NoError(t, err)
	found := false
	for _, a := range activities {
		if a.Str("Id", "") == id {
			found = true
			assert.Equal(t, "Follow up: high churn risk", a.Str("Subject", ""))
		}
	}
	assert.True(t, found)

	_, err = mc.CreateRecord(ctx, "Widget", types.Record{})
	assert.ErrorContains(t, err, "unknown object type")
}

func TestMockHealthProfilesSpreadChurnSignals(t *testing.T) {
	mc := NewMockClient(DefaultMockSeed)
	accounts, err := mc.Accounts(context.Background(), 0)
	require.NoError(t, err)

	cold, hot := 0, 0
	for _, a := range accounts {
		switch a.Str("Rating", "") {
		case "Cold":
			cold++
		case "Hot":
			hot++
		}
		assert.False(t, a.Time("LastActivityDate").IsZero())
	}
	assert.Greater(t, cold, 0)
	assert.Greater(t, hot, 0)
}
