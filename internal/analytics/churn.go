package analytics

import (
	"log/slog"
	"sort"
	"time"

	"github.com/saleslens/saleslens/internal/types"
)

// ChurnThresholds are the risk-level cut points: High when the composite
// score is at or above High, Medium at or above Medium, Low otherwise.
type ChurnThresholds struct {
	High   float64
	Medium float64
}

// DefaultChurnThresholds returns the default classification cut points.
func DefaultChurnThresholds() ChurnThresholds {
	return ChurnThresholds{High: 0.7, Medium: 0.4}
}

// Composite weights for the four churn risk components.
const (
	caseRiskWeight         = 0.30
	engagementRiskWeight   = 0.25
	revenueRiskWeight      = 0.25
	satisfactionRiskWeight = 0.20
)

// Risk factor descriptions emitted when a component exceeds its threshold.
const (
	factorCaseVolume      = "High support case volume or escalations"
	factorLowEngagement   = "Low engagement - no recent activity"
	factorNoRecentWins    = "No recent closed-won opportunities"
	factorLowSatisfaction = "Low customer satisfaction scores"
	factorNone            = "No significant risk factors identified"
)

// ChurnPredictor assesses per-account churn risk from account health
// signals: support cases, engagement recency, won revenue and CSAT.
type ChurnPredictor struct {
	thresholds ChurnThresholds
	now        func() time.Time
}

// NewChurnPredictor creates a predictor with the given thresholds; zero
// thresholds fall back to the defaults.
func NewChurnPredictor(thresholds ChurnThresholds) *ChurnPredictor {
	if thresholds.High == 0 && thresholds.Medium == 0 {
		thresholds = DefaultChurnThresholds()
	}
	return &ChurnPredictor{thresholds: thresholds, now: time.Now}
}

// churnSubScores holds the per-account component risks in [0,1]. They are
// internal and never attached to the output record.
type churnSubScores struct {
	caseRisk, engagementRisk, revenueRisk, satisfactionRisk float64
}

// Predict assesses churn risk for each account and returns the results
// sorted by score descending. Empty accounts yield an empty, non-nil
// result; cases and opportunities may each be empty independently.
func (cp *ChurnPredictor) Predict(accounts, cases, opps []types.Record) []ChurnAccount {
	if len(accounts) == 0 {
		return []ChurnAccount{}
	}

	caseRisks := cp.caseRisks(accounts, cases)
	engagementRisks := cp.engagementRisks(accounts)
	revenueRisks := cp.revenueRisks(accounts, opps)
	satisfactionRisks := cp.satisfactionRisks(accounts, cases)

	out := make([]ChurnAccount, 0, len(accounts))
	for i, acct := range accounts {
		sub := churnSubScores{
			caseRisk:         caseRisks[i],
			engagementRisk:   engagementRisks[i],
			revenueRisk:      revenueRisks[i],
			satisfactionRisk: satisfactionRisks[i],
		}
		score := round3(sub.caseRisk*caseRiskWeight +
			sub.engagementRisk*engagementRiskWeight +
			sub.revenueRisk*revenueRiskWeight +
			sub.satisfactionRisk*satisfactionRiskWeight)

		out = append(out, ChurnAccount{
			Account:     acct,
			Score:       score,
			Level:       cp.classify(score),
			RiskFactors: riskFactors(sub),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	high, medium := 0, 0
	for _, a := range out {
		switch a.Level {
		case RiskHigh:
			high++
		case RiskMedium:
			medium++
		}
	}
	slog.Info("Churn analysis complete", "accounts", len(out), "high", high, "medium", medium)
	return out
}

// RiskSummary returns a high-level summary of churn risk across the
// customer base.
func (cp *ChurnPredictor) RiskSummary(accounts, cases, opps []types.Record) RiskSummary {
	summary := RiskSummary{
		RiskBreakdown:    map[RiskLevel]int{RiskLow: 0, RiskMedium: 0, RiskHigh: 0},
		HighRiskAccounts: []HighRiskAccount{},
	}
	predicted := cp.Predict(accounts, cases, opps)
	if len(predicted) == 0 {
		return summary
	}

	scores := make([]float64, len(predicted))
	for i, acct := range predicted {
		scores[i] = acct.Score
		summary.RiskBreakdown[acct.Level]++
		if acct.Level == RiskHigh {
			summary.HighRiskAccounts = append(summary.HighRiskAccounts, HighRiskAccount{
				Name:     acct.Account.Str("Name", ""),
				Industry: acct.Account.Str("Industry", ""),
				Score:    acct.Score,
			})
			summary.TotalRevenueAtRisk += acct.Account.Float("AnnualRevenue", 0)
		}
	}
	summary.TotalAccounts = len(predicted)
	summary.AverageRiskScore = round3(mean(scores))
	return summary
}

// caseRisks blends per-account case volume with escalations. No case rows
// at all means an explicit zero for every account: "no case history" is
// distinct from "unknown".
func (cp *ChurnPredictor) caseRisks(accounts, cases []types.Record) []float64 {
	risks := make([]float64, len(accounts))
	if len(cases) == 0 {
		return risks
	}

	counts := make(map[string]float64)
	escalated := make(map[string]float64)
	for _, c := range cases {
		id := c.Str("AccountId", "")
		if id == "" {
			continue
		}
		counts[id]++
		switch c.Str("Priority", "") {
		case "High", "Critical":
			escalated[id]++
		}
	}

	for i, acct := range accounts {
		id := acct.Str("Id", "")
		caseNorm := clip(counts[id]/10, 0, 1)
		escNorm := clip(escalated[id]/3, 0, 1)
		risks[i] = caseNorm*0.5 + escNorm*0.5
	}
	return risks
}

// engagementRisks scales days since last activity over a 90-day horizon.
// When the activity-date field is absent from the whole dataset, every
// account gets a flat moderate 0.3: absence of data is not "healthy".
// A record that lacks or fails to parse the date counts as 90 days.
func (cp *ChurnPredictor) engagementRisks(accounts []types.Record) []float64 {
	risks := make([]float64, len(accounts))

	present := false
	for _, acct := range accounts {
		if acct.Has("LastActivityDate") {
			present = true
			break
		}
	}
	if !present {
		for i := range risks {
			risks[i] = 0.3
		}
		return risks
	}

	now := cp.now()
	for i, acct := range accounts {
		days := 90.0
		if t := acct.Time("LastActivityDate"); !t.IsZero() {
			days = now.Sub(t).Hours() / 24
		}
		risks[i] = clip(days/90, 0, 1)
	}
	return risks
}

// revenueRisks is a near-binary signal on recent closed-won value. With no
// opportunity data at all the risk is a flat unknown 0.5; with data but no
// wins anywhere it is a flat 0.6; otherwise accounts with any won value
// score 0.2 and accounts with none score 1.0.
func (cp *ChurnPredictor) revenueRisks(accounts, opps []types.Record) []float64 {
	risks := make([]float64, len(accounts))
	if len(opps) == 0 {
		for i := range risks {
			risks[i] = 0.5
		}
		return risks
	}

	wonValue := make(map[string]float64)
	anyWon := false
	for _, opp := range opps {
		if !opp.Bool("IsWon", false) {
			continue
		}
		anyWon = true
		if id := opp.Str("AccountId", ""); id != "" {
			wonValue[id] += opp.Float("Amount", 0)
		}
	}
	if !anyWon {
		for i := range risks {
			risks[i] = 0.6
		}
		return risks
	}

	for i, acct := range accounts {
		if wonValue[acct.Str("Id", "")] > 0 {
			risks[i] = 0.2
		} else {
			risks[i] = 1.0
		}
	}
	return risks
}

// satisfactionRisks inverts the per-account mean CSAT (1-5 scale). With no
// cases or no CSAT field anywhere, every account gets the flat 0.3
// unknown; accounts without any rated case get a neutral 3.0.
func (cp *ChurnPredictor) satisfactionRisks(accounts, cases []types.Record) []float64 {
	risks := make([]float64, len(accounts))

	present := false
	for _, c := range cases {
		if c.Has("Customer_Satisfaction__c") {
			present = true
			break
		}
	}
	if len(cases) == 0 || !present {
		for i := range risks {
			risks[i] = 0.3
		}
		return risks
	}

	sum := make(map[string]float64)
	count := make(map[string]float64)
	for _, c := range cases {
		if !c.Has("Customer_Satisfaction__c") {
			continue
		}
		id := c.Str("AccountId", "")
		if id == "" {
			continue
		}
		sum[id] += c.Float("Customer_Satisfaction__c", 3.0)
		count[id]++
	}

	for i, acct := range accounts {
		id := acct.Str("Id", "")
		avg := 3.0
		if count[id] > 0 {
			avg = sum[id] / count[id]
		}
		risks[i] = clip(1-(avg-1)/4, 0, 1)
	}
	return risks
}

func (cp *ChurnPredictor) classify(score float64) RiskLevel {
	switch {
	case score >= cp.thresholds.High:
		return RiskHigh
	case score >= cp.thresholds.Medium:
		return RiskMedium
	default:
		return RiskLow
	}
}

// riskFactors lists the specific factors behind an account's score. The
// list is never empty: a sentinel entry marks the no-findings case.
func riskFactors(sub churnSubScores) []string {
	var factors []string
	if sub.caseRisk > 0.6 {
		factors = append(factors, factorCaseVolume)
	}
	if sub.engagementRisk > 0.6 {
		factors = append(factors, factorLowEngagement)
	}
	if sub.revenueRisk > 0.6 {
		factors = append(factors, factorNoRecentWins)
	}
	if sub.satisfactionRisk > 0.6 {
		factors = append(factors, factorLowSatisfaction)
	}
	if len(factors) == 0 {
		return []string{factorNone}
	}
	return factors
}
