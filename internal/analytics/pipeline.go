package analytics

import (
	"fmt"
	"log/slog"

	"github.com/saleslens/saleslens/internal/types"
)

// DefaultStages is the ordered Salesforce opportunity stage list.
func DefaultStages() []string {
	return []string{
		"Prospecting",
		"Qualification",
		"Needs Analysis",
		"Proposal",
		"Negotiation",
		"Closed Won",
		"Closed Lost",
	}
}

// DefaultCoverageQuota is the reference open-pipeline value against which
// the coverage health component is measured. A business placeholder, not
// an invariant; override it via configuration.
const DefaultCoverageQuota = 500000.0

// PipelineAnalyser evaluates opportunity data across stages, velocity,
// forecast and a composite health score.
type PipelineAnalyser struct {
	stages []string
	quota  float64
}

// NewPipelineAnalyser creates an analyser for the given ordered stage list
// and coverage quota. Nil stages and non-positive quota fall back to the
// defaults.
func NewPipelineAnalyser(stages []string, quota float64) *PipelineAnalyser {
	if len(stages) == 0 {
		stages = DefaultStages()
	}
	if quota <= 0 {
		quota = DefaultCoverageQuota
	}
	return &PipelineAnalyser{stages: stages, quota: quota}
}

// Stages returns the configured stage order.
func (pa *PipelineAnalyser) Stages() []string {
	return append([]string(nil), pa.stages...)
}

// Analyse runs the full pipeline health analysis. An empty input yields
// the documented empty report rather than an error.
func (pa *PipelineAnalyser) Analyse(opps []types.Record) PipelineReport {
	if len(opps) == 0 {
		return PipelineReport{
			StageSummary:    pa.emptyStageSummary(),
			RiskIndicators:  []RiskIndicator{},
			HealthScore:     HealthScore{Score: 0, Rating: "No Data"},
			Recommendations: []string{"No opportunity data available for analysis."},
		}
	}

	report := PipelineReport{
		StageSummary:    pa.stageSummary(opps),
		VelocityMetrics: pa.velocityMetrics(opps),
		Forecast:        pa.forecast(opps),
		HealthScore:     pa.healthScore(opps),
		RiskIndicators:  pa.identifyRisks(opps),
	}
	report.Recommendations = pa.recommendations(report)

	slog.Info("Pipeline analysed",
		"opportunities", len(opps),
		"health_score", report.HealthScore.Score,
		"rating", report.HealthScore.Rating,
		"risks", len(report.RiskIndicators))
	return report
}

// StageFunnel returns the stage data formatted for a funnel chart. Empty
// input yields an empty, non-nil slice.
func (pa *PipelineAnalyser) StageFunnel(opps []types.Record) []FunnelRow {
	funnel := make([]FunnelRow, 0, len(pa.stages))
	if len(opps) == 0 {
		return funnel
	}
	for _, stage := range pa.stages {
		count := 0
		total := 0.0
		for _, opp := range opps {
			if opp.Str("StageName", "") != stage {
				continue
			}
			count++
			total += opp.Float("Amount", 0)
		}
		row := FunnelRow{Stage: stage, Count: count, TotalValue: total}
		if count > 0 {
			row.AvgValue = total / float64(count)
		}
		funnel = append(funnel, row)
	}
	return funnel
}

func (pa *PipelineAnalyser) emptyStageSummary() []StageSummary {
	return []StageSummary{}
}

// stageSummary breaks the pipeline down by configured stage, preserving
// stage order and emitting zero rows for stages with no opportunities.
func (pa *PipelineAnalyser) stageSummary(opps []types.Record) []StageSummary {
	summary := make([]StageSummary, 0, len(pa.stages))
	for _, stage := range pa.stages {
		s := StageSummary{Stage: stage}
		for _, opp := range opps {
			if opp.Str("StageName", "") != stage {
				continue
			}
			amount := opp.Float("Amount", 0)
			s.Count++
			s.TotalValue += amount
			s.WeightedValue += amount * opp.Float("Probability", 0) / 100
		}
		if s.Count > 0 {
			s.AvgValue = s.TotalValue / float64(s.Count)
		}
		summary = append(summary, s)
	}
	return summary
}

func (pa *PipelineAnalyser) velocityMetrics(opps []types.Record) VelocityMetrics {
	days := make([]float64, len(opps))
	for i, opp := range opps {
		days[i] = opp.Float("Days_In_Stage__c", 0)
	}

	vm := VelocityMetrics{
		AvgDaysInCurrentStage: mean(days),
		MedianDaysInStage:     median(days),
	}
	for _, opp := range opps {
		amount := opp.Float("Amount", 0)
		if !opp.Bool("IsClosed", false) {
			vm.OpenDeals++
			vm.OpenPipelineValue += amount
		}
		if opp.Bool("IsWon", false) {
			vm.ClosedWonCount++
			vm.ClosedWonValue += amount
		}
	}
	if vm.ClosedWonCount > 0 {
		vm.AvgDealSize = vm.ClosedWonValue / float64(vm.ClosedWonCount)
	}
	return vm
}

// forecast buckets open-deal value by forecast category. Deals without a
// category count toward the generic Pipeline bucket.
func (pa *PipelineAnalyser) forecast(opps []types.Record) Forecast {
	var fc Forecast
	for _, opp := range opps {
		if opp.Bool("IsClosed", false) {
			continue
		}
		amount := opp.Float("Amount", 0)
		switch opp.Str("ForecastCategory", "Pipeline") {
		case "Best Case":
			fc.BestCase += amount
		case "Commit":
			fc.Commit += amount
		default:
			fc.Pipeline += amount
		}
		fc.TotalWeighted += amount * opp.Float("Probability", 0) / 100
	}
	return fc
}

// lateStages are the stages counted as late-pipeline presence for the
// distribution health component. Closed Lost is deliberately excluded.
var lateStages = map[string]bool{
	"Proposal":    true,
	"Negotiation": true,
	"Closed Won":  true,
}

// healthScore computes the composite 0-100 health score from four
// independent 25-point components.
func (pa *PipelineAnalyser) healthScore(opps []types.Record) HealthScore {
	// 1. Coverage: open pipeline value measured against the quota.
	openValue := 0.0
	for _, opp := range opps {
		if !opp.Bool("IsClosed", false) {
			openValue += opp.Float("Amount", 0)
		}
	}
	coverage := clip(openValue/pa.quota, 0, 1) * 25

	// 2. Distribution: penalise concentration in early stages.
	late := 0
	for _, opp := range opps {
		if lateStages[opp.Str("StageName", "")] {
			late++
		}
	}
	distribution := float64(late) / float64(len(opps)) * 25

	// 3. Win rate. Zero closed deals means nothing to judge, so a neutral
	// 0.5 avoids both a divide-by-zero and an implied poor performance.
	closed, won := 0, 0
	for _, opp := range opps {
		if opp.Bool("IsClosed", false) {
			closed++
			if opp.Bool("IsWon", false) {
				won++
			}
		}
	}
	winRate := 0.5
	if closed > 0 {
		winRate = float64(won) / float64(closed)
	}
	winRateScore := winRate * 25

	// 4. Velocity: lower average days in stage is healthier. Missing days
	// default to 30 here, unlike the raw velocity metrics.
	days := make([]float64, len(opps))
	for i, opp := range opps {
		days[i] = opp.Float("Days_In_Stage__c", 30)
	}
	velocity := clip(1-mean(days)/60, 0, 1) * 25

	total := round1(coverage + distribution + winRateScore + velocity)
	return HealthScore{
		Score:  total,
		Rating: healthRating(total),
		Breakdown: HealthBreakdown{
			Coverage:     round1(coverage),
			Distribution: round1(distribution),
			WinRate:      round1(winRateScore),
			Velocity:     round1(velocity),
		},
	}
}

func healthRating(score float64) string {
	switch {
	case score >= 75:
		return "Excellent"
	case score >= 55:
		return "Good"
	case score >= 35:
		return "Fair"
	default:
		return "Poor"
	}
}

const (
	riskStalledDeals  = "Stalled Deals"
	riskConcentration = "Concentration Risk"
	riskThinFunnel    = "Thin Top of Funnel"
)

// identifyRisks scans for pipeline risk indicators. Any subset may be
// empty; the result is always non-nil.
func (pa *PipelineAnalyser) identifyRisks(opps []types.Record) []RiskIndicator {
	risks := []RiskIndicator{}

	var open []types.Record
	for _, opp := range opps {
		if !opp.Bool("IsClosed", false) {
			open = append(open, opp)
		}
	}

	// Stalled deals: open and sitting in the current stage too long.
	stalledCount := 0
	stalledValue := 0.0
	for _, opp := range open {
		if opp.Float("Days_In_Stage__c", 0) > 30 {
			stalledCount++
			stalledValue += opp.Float("Amount", 0)
		}
	}
	if stalledCount > 0 {
		risks = append(risks, RiskIndicator{
			Type:     riskStalledDeals,
			Severity: "High",
			Count:    stalledCount,
			Value:    stalledValue,
			Message: fmt.Sprintf("%d deals stalled (>30 days in current stage), worth £%s",
				stalledCount, groupThousands(stalledValue)),
		})
	}

	// Concentration: a single deal dominating the open pipeline.
	openValue, maxDeal := 0.0, 0.0
	for _, opp := range open {
		amount := opp.Float("Amount", 0)
		openValue += amount
		if amount > maxDeal {
			maxDeal = amount
		}
	}
	if len(open) > 0 && openValue > 0 {
		if pct := maxDeal / openValue; pct > 0.4 {
			risks = append(risks, RiskIndicator{
				Type:     riskConcentration,
				Severity: "Medium",
				Message:  fmt.Sprintf("Largest deal represents %.0f%% of pipeline", pct*100),
			})
		}
	}

	// Thin top of funnel: too few open deals in the first two stages.
	early := 0
	earlyStages := pa.earlyStages()
	for _, opp := range open {
		if earlyStages[opp.Str("StageName", "")] {
			early++
		}
	}
	if early < 5 {
		risks = append(risks, RiskIndicator{
			Type:     riskThinFunnel,
			Severity: "Medium",
			Count:    early,
			Message:  fmt.Sprintf("Only %d deals in early stages - future pipeline at risk", early),
		})
	}

	return risks
}

// earlyStages returns the first two configured stages as the top-of-funnel
// set.
func (pa *PipelineAnalyser) earlyStages() map[string]bool {
	early := make(map[string]bool, 2)
	for i, stage := range pa.stages {
		if i >= 2 {
			break
		}
		early[stage] = true
	}
	return early
}

// recommendations maps each risk type to templated advice and appends a
// win-rate recommendation when that component is weak.
func (pa *PipelineAnalyser) recommendations(report PipelineReport) []string {
	recs := []string{}
	for _, risk := range report.RiskIndicators {
		switch risk.Type {
		case riskStalledDeals:
			recs = append(recs, fmt.Sprintf(
				"Review %d stalled deals - consider re-engagement campaigns or pipeline clean-up.", risk.Count))
		case riskConcentration:
			recs = append(recs,
				"Diversify pipeline - high dependency on a single large deal increases forecast risk.")
		case riskThinFunnel:
			recs = append(recs,
				"Increase prospecting activity - the early-stage pipeline is thin and will impact future quarters.")
		}
	}
	if report.HealthScore.Breakdown.WinRate < 10 {
		recs = append(recs,
			"Win rate is below target - review qualification criteria and sales process effectiveness.")
	}
	return recs
}
