package analytics

import "github.com/saleslens/saleslens/internal/types"

// Priority is the lead priority tier, ordered Low < Medium < High < Critical.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// RiskLevel is the churn risk classification, ordered Low < Medium < High.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ScoredLead pairs an input lead with its derived score and tier. The
// underlying record is the caller's; Merged produces the augmented copy.
type ScoredLead struct {
	Lead     types.Record `json:"lead"`
	Score    float64      `json:"lead_score"`
	Priority Priority     `json:"priority"`
}

// Merged returns a copy of the lead record with the derived fields attached.
func (s ScoredLead) Merged() types.Record {
	out := s.Lead.Clone()
	out["Lead_Score"] = s.Score
	out["Priority"] = string(s.Priority)
	return out
}

// Distribution summarises lead scores across the scored population.
type Distribution struct {
	TotalLeads        int              `json:"total_leads"`
	AverageScore      float64          `json:"average_score"`
	MedianScore       float64          `json:"median_score"`
	PriorityBreakdown map[Priority]int `json:"priority_breakdown"`
	ScoreRanges       map[string]int   `json:"score_ranges"`
}

// StageSummary is the per-stage pipeline breakdown.
type StageSummary struct {
	Stage         string  `json:"stage"`
	Count         int     `json:"count"`
	TotalValue    float64 `json:"total_value"`
	AvgValue      float64 `json:"avg_value"`
	WeightedValue float64 `json:"weighted_value"`
}

// FunnelRow is a stage row formatted for a funnel chart.
type FunnelRow struct {
	Stage      string  `json:"stage"`
	Count      int     `json:"count"`
	TotalValue float64 `json:"total_value"`
	AvgValue   float64 `json:"avg_value"`
}

// VelocityMetrics measures how fast deals move through the pipeline.
type VelocityMetrics struct {
	AvgDaysInCurrentStage float64 `json:"avg_days_in_current_stage"`
	MedianDaysInStage     float64 `json:"median_days_in_stage"`
	OpenDeals             int     `json:"open_deals"`
	OpenPipelineValue     float64 `json:"open_pipeline_value"`
	ClosedWonCount        int     `json:"closed_won_count"`
	ClosedWonValue        float64 `json:"closed_won_value"`
	AvgDealSize           float64 `json:"avg_deal_size"`
}

// Forecast buckets open-deal value by forecast category.
type Forecast struct {
	BestCase      float64 `json:"best_case"`
	Commit        float64 `json:"commit"`
	Pipeline      float64 `json:"pipeline"`
	TotalWeighted float64 `json:"total_weighted"`
}

// HealthBreakdown holds the four 25-point pipeline health components.
type HealthBreakdown struct {
	Coverage     float64 `json:"coverage"`
	Distribution float64 `json:"distribution"`
	WinRate      float64 `json:"win_rate"`
	Velocity     float64 `json:"velocity"`
}

// HealthScore is the composite pipeline health result.
type HealthScore struct {
	Score     float64         `json:"score"`
	Rating    string          `json:"rating"`
	Breakdown HealthBreakdown `json:"breakdown"`
}

// RiskIndicator is a structured pipeline risk finding.
type RiskIndicator struct {
	Type     string  `json:"type"`
	Severity string  `json:"severity"`
	Count    int     `json:"count,omitempty"`
	Value    float64 `json:"value,omitempty"`
	Message  string  `json:"message"`
}

// PipelineReport is the full pipeline health analysis.
type PipelineReport struct {
	StageSummary    []StageSummary  `json:"stage_summary"`
	VelocityMetrics VelocityMetrics `json:"velocity_metrics"`
	Forecast        Forecast        `json:"forecast"`
	HealthScore     HealthScore     `json:"health_score"`
	RiskIndicators  []RiskIndicator `json:"risk_indicators"`
	Recommendations []string        `json:"recommendations"`
}

// ChurnAccount pairs an input account with its derived churn risk fields.
type ChurnAccount struct {
	Account     types.Record `json:"account"`
	Score       float64      `json:"churn_risk_score"`
	Level       RiskLevel    `json:"churn_risk_level"`
	RiskFactors []string     `json:"risk_factors"`
}

// Merged returns a copy of the account record with the derived fields attached.
func (c ChurnAccount) Merged() types.Record {
	out := c.Account.Clone()
	out["Churn_Risk_Score"] = c.Score
	out["Churn_Risk_Level"] = string(c.Level)
	out["Risk_Factors"] = c.RiskFactors
	return out
}

// HighRiskAccount is the summary view of a High-risk account.
type HighRiskAccount struct {
	Name     string  `json:"name"`
	Industry string  `json:"industry"`
	Score    float64 `json:"churn_risk_score"`
}

// RiskSummary aggregates churn risk across the customer base.
type RiskSummary struct {
	TotalAccounts      int               `json:"total_accounts"`
	AverageRiskScore   float64           `json:"average_risk_score"`
	RiskBreakdown      map[RiskLevel]int `json:"risk_breakdown"`
	HighRiskAccounts   []HighRiskAccount `json:"high_risk_accounts"`
	TotalRevenueAtRisk float64           `json:"total_revenue_at_risk"`
}
