package analytics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saleslens/saleslens/internal/types"
)

func opp(stage string, amount, probability float64, closed, won bool, daysInStage float64) types.Record {
	return types.Record{
		"StageName":        stage,
		"Amount":           amount,
		"Probability":      probability,
		"IsClosed":         closed,
		"IsWon":            won,
		"Days_In_Stage__c": daysInStage,
	}
}

func TestAnalyseEmptyInput(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	report := pa.Analyse(nil)

	assert.Equal(t, 0.0, report.HealthScore.Score)
	assert.Equal(t, "No Data", report.HealthScore.Rating)
	assert.NotNil(t, report.RiskIndicators)
	assert.Len(t, report.RiskIndicators, 0)
	require.Len(t, report.Recommendations, 1)
	assert.Equal(t, "No opportunity data available for analysis.", report.Recommendations[0])
}

func TestStageSummaryCoversAllStagesInOrder(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	report := pa.Analyse([]types.Record{
		opp("Prospecting", 100, 50, false, false, 5),
		opp("Prospecting", 200, 50, false, false, 5),
		opp("Negotiation", 1000, 80, false, false, 10),
	})

	require.Len(t, report.StageSummary, 7)
	for i, stage := range DefaultStages() {
		assert.Equal(t, stage, report.StageSummary[i].Stage)
	}

	prospecting := report.StageSummary[0]
	assert.Equal(t, 2, prospecting.Count)
	assert.Equal(t, 300.0, prospecting.TotalValue)
	assert.Equal(t, 150.0, prospecting.AvgValue)
	assert.Equal(t, 150.0, prospecting.WeightedValue)

	// Stages with no rows still appear, zeroed.
	closedWon := report.StageSummary[5]
	assert.Equal(t, "Closed Won", closedWon.Stage)
	assert.Equal(t, 0, closedWon.Count)
	assert.Equal(t, 0.0, closedWon.AvgValue)
}

func TestAmountCoercion(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	report := pa.Analyse([]types.Record{
		{"StageName": "Proposal", "Amount": "not a number", "Probability": "??"},
	})
	assert.Equal(t, 0.0, report.StageSummary[3].TotalValue)
	assert.Equal(t, 1, report.StageSummary[3].Count)
}

func TestVelocityMetrics(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	report := pa.Analyse([]types.Record{
		opp("Prospecting", 100, 20, false, false, 10),
		opp("Closed Won", 500, 100, true, true, 30),
		types.Record{"StageName": "Qualification", "Amount": 50, "IsClosed": false}, // missing days -> 0
	})

	vm := report.VelocityMetrics
	assert.InDelta(t, (10.0+30.0+0.0)/3, vm.AvgDaysInCurrentStage, 1e-9)
	assert.Equal(t, 10.0, vm.MedianDaysInStage)
	assert.Equal(t, 2, vm.OpenDeals)
	assert.Equal(t, 150.0, vm.OpenPipelineValue)
	assert.Equal(t, 1, vm.ClosedWonCount)
	assert.Equal(t, 500.0, vm.ClosedWonValue)
	assert.Equal(t, 500.0, vm.AvgDealSize)
}

func TestForecastBucketsOpenDealsOnly(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	commit := opp("Negotiation", 1000, 90, false, false, 5)
	commit["ForecastCategory"] = "Commit"
	best := opp("Proposal", 400, 60, false, false, 5)
	best["ForecastCategory"] = "Best Case"
	uncategorised := opp("Prospecting", 100, 10, false, false, 5)
	closed := opp("Closed Won", 9999, 100, true, true, 5)
	closed["ForecastCategory"] = "Commit"

	report := pa.Analyse([]types.Record{commit, best, uncategorised, closed})
	fc := report.Forecast
	assert.Equal(t, 400.0, fc.BestCase)
	assert.Equal(t, 1000.0, fc.Commit)
	assert.Equal(t, 100.0, fc.Pipeline)
	assert.InDelta(t, 1000*0.9+400*0.6+100*0.1, fc.TotalWeighted, 1e-9)
}

func TestHealthScoreComponents(t *testing.T) {
	// Quota of 1000 with 500 open value: coverage = 0.5*25 = 12.5.
	pa := NewPipelineAnalyser(nil, 1000)
	report := pa.Analyse([]types.Record{
		opp("Proposal", 500, 50, false, false, 0),
		opp("Closed Won", 100, 100, true, true, 0),
	})

	hb := report.HealthScore.Breakdown
	assert.Equal(t, 12.5, hb.Coverage)
	assert.Equal(t, 25.0, hb.Distribution) // both rows in late stages
	assert.Equal(t, 25.0, hb.WinRate)      // 1/1 closed won
	assert.Equal(t, 25.0, hb.Velocity)     // zero days in stage
	assert.Equal(t, 87.5, report.HealthScore.Score)
	assert.Equal(t, "Excellent", report.HealthScore.Rating)
}

func TestHealthScoreWinRateDefaultsWhenNothingClosed(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	report := pa.Analyse([]types.Record{opp("Prospecting", 10, 10, false, false, 0)})
	assert.Equal(t, 12.5, report.HealthScore.Breakdown.WinRate)
}

func TestHealthScoreVelocityDefaultsMissingDaysTo30(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	report := pa.Analyse([]types.Record{
		{"StageName": "Prospecting", "Amount": 10, "IsClosed": false},
	})
	// avg days 30 -> (1 - 30/60) * 25 = 12.5, while the raw velocity
	// metrics default the same missing field to zero.
	assert.Equal(t, 12.5, report.HealthScore.Breakdown.Velocity)
	assert.Equal(t, 0.0, report.VelocityMetrics.AvgDaysInCurrentStage)
}

func TestAllClosedLostDrivesScoreLow(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	var opps []types.Record
	for i := 0; i < 5; i++ {
		opps = append(opps, opp("Closed Lost", 100, 0, true, false, 10))
	}
	report := pa.Analyse(opps)

	hb := report.HealthScore.Breakdown
	assert.Equal(t, 0.0, hb.WinRate)
	assert.Equal(t, 0.0, hb.Distribution) // Closed Lost is not a late stage
	assert.Equal(t, 0.0, hb.Coverage)     // nothing open
	assert.Equal(t, "Poor", report.HealthScore.Rating)
	assert.Contains(t, report.Recommendations,
		"Win rate is below target - review qualification criteria and sales process effectiveness.")
}

func TestHealthScoreBounds(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	inputs := [][]types.Record{
		{opp("Prospecting", 0, 0, false, false, 500)},
		{opp("Closed Won", 1e9, 100, true, true, 0)},
		{{"StageName": "Unknown"}},
	}
	for _, opps := range inputs {
		report := pa.Analyse(opps)
		assert.GreaterOrEqual(t, report.HealthScore.Score, 0.0)
		assert.LessOrEqual(t, report.HealthScore.Score, 100.0)
	}
}

func TestIdentifyRisks(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)

	stalled := opp("Proposal", 50000, 60, false, false, 45)
	small := opp("Qualification", 1000, 20, false, false, 5)
	report := pa.Analyse([]types.Record{stalled, small})

	byType := map[string]RiskIndicator{}
	for _, r := range report.RiskIndicators {
		byType[r.Type] = r
	}

	require.Contains(t, byType, "Stalled Deals")
	assert.Equal(t, "High", byType["Stalled Deals"].Severity)
	assert.Equal(t, 1, byType["Stalled Deals"].Count)
	assert.Equal(t, 50000.0, byType["Stalled Deals"].Value)
	assert.Contains(t, byType["Stalled Deals"].Message, "£50,000")

	// 50000/51000 of open value in a single deal.
	require.Contains(t, byType, "Concentration Risk")
	assert.Equal(t, "Medium", byType["Concentration Risk"].Severity)

	// Only one early-stage open deal.
	require.Contains(t, byType, "Thin Top of Funnel")
	assert.Equal(t, 1, byType["Thin Top of Funnel"].Count)

	// One recommendation per risk present.
	assert.GreaterOrEqual(t, len(report.Recommendations), 3)
}

func TestNoThinFunnelRiskWithHealthyEarlyPipeline(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)
	var opps []types.Record
	for i := 0; i < 5; i++ {
		opps = append(opps, opp("Prospecting", 100, 10, false, false, 1))
	}
	report := pa.Analyse(opps)
	for _, r := range report.RiskIndicators {
		assert.NotEqual(t, "Thin Top of Funnel", r.Type)
	}
}

func TestStageFunnel(t *testing.T) {
	pa := NewPipelineAnalyser(nil, 0)

	assert.Len(t, pa.StageFunnel(nil), 0)

	funnel := pa.StageFunnel([]types.Record{
		opp("Prospecting", 100, 10, false, false, 1),
		opp("Closed Lost", 700, 0, true, false, 1),
	})
	require.Len(t, funnel, 7)
	assert.Equal(t, "Prospecting", funnel[0].Stage)
	assert.Equal(t, 100.0, funnel[0].TotalValue)
	assert.Equal(t, 700.0, funnel[6].TotalValue)
}

func TestCustomStageList(t *testing.T) {
	stages := []string{"New", "Working", "Done"}
	pa := NewPipelineAnalyser(stages, 0)
	report := pa.Analyse([]types.Record{opp("Working", 10, 50, false, false, 1)})

	require.Len(t, report.StageSummary, 3)
	assert.Equal(t, "New", report.StageSummary[0].Stage)
	assert.Equal(t, 1, report.StageSummary[1].Count)
}
