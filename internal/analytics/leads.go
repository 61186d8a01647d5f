package analytics

import (
	"log/slog"
	"math"
	"sort"

	"github.com/saleslens/saleslens/internal/types"
)

// Weight keys accepted by the lead scorer. The composite is a plain
// weighted sum of whatever mapping the caller supplies; it is not
// renormalised, so weights need not sum to 1.
const (
	WeightCompanySize  = "company_size"
	WeightEngagement   = "engagement_score"
	WeightIndustry     = "industry_match"
	WeightBudget       = "budget_range"
	WeightResponseTime = "response_time_days"
	WeightEmailOpens   = "email_opens"
)

// DefaultLeadWeights returns the default scoring weight mapping.
func DefaultLeadWeights() map[string]float64 {
	return map[string]float64{
		WeightCompanySize:  0.20,
		WeightEngagement:   0.25,
		WeightIndustry:     0.15,
		WeightBudget:       0.20,
		WeightResponseTime: 0.10,
		WeightEmailOpens:   0.10,
	}
}

// targetIndustries score a full industry match; everything else gets a
// reduced but non-zero factor so industry is a bonus, not a gate.
var targetIndustries = map[string]bool{
	"Technology": true,
	"Finance":    true,
	"Healthcare": true,
	"Consulting": true,
}

// LeadScorer assigns composite scores (0-100) and priority tiers to leads
// based on firmographic, behavioural and engagement signals.
type LeadScorer struct {
	weights map[string]float64
}

// NewLeadScorer creates a scorer with the given weight mapping, falling
// back to DefaultLeadWeights when nil.
func NewLeadScorer(weights map[string]float64) *LeadScorer {
	if weights == nil {
		weights = DefaultLeadWeights()
	}
	return &LeadScorer{weights: weights}
}

// leadSubScores holds the per-lead component scores, each normalised to
// [0,1]. They are internal and never attached to the output record.
type leadSubScores struct {
	companySize, engagement, industry, budget, responseTime, email float64
}

// ScoreLeads scores each lead and returns the results sorted by score
// descending. Input records are not mutated; an empty input yields an
// empty, non-nil result.
func (ls *LeadScorer) ScoreLeads(leads []types.Record) []ScoredLead {
	scored := make([]ScoredLead, 0, len(leads))
	for _, lead := range leads {
		sub := ls.subScores(lead)
		composite := (sub.companySize*ls.weights[WeightCompanySize] +
			sub.engagement*ls.weights[WeightEngagement] +
			sub.industry*ls.weights[WeightIndustry] +
			sub.budget*ls.weights[WeightBudget] +
			sub.responseTime*ls.weights[WeightResponseTime] +
			sub.email*ls.weights[WeightEmailOpens]) * 100

		score := round1(clip(composite, 0, 100))
		scored = append(scored, ScoredLead{
			Lead:     lead,
			Score:    score,
			Priority: priorityFor(score),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > 0 {
		critical, high := 0, 0
		for _, s := range scored {
			switch s.Priority {
			case PriorityCritical:
				critical++
			case PriorityHigh:
				high++
			}
		}
		slog.Info("Scored leads", "count", len(scored), "critical", critical, "high", high)
	}
	return scored
}

// TopLeads returns the n highest-scored leads.
func (ls *LeadScorer) TopLeads(leads []types.Record, n int) []ScoredLead {
	scored := ls.ScoreLeads(leads)
	if n < 0 {
		n = 0
	}
	if n > len(scored) {
		n = len(scored)
	}
	return scored[:n]
}

// ScoreDistribution summarises the score population: mean, median, tier
// counts and fixed score bands. The bands use their own cut semantics
// (<=30, 30-60, 60-80, >80) and are computed independently of the tiers.
func (ls *LeadScorer) ScoreDistribution(leads []types.Record) Distribution {
	scored := ls.ScoreLeads(leads)

	dist := Distribution{
		TotalLeads: len(scored),
		PriorityBreakdown: map[Priority]int{
			PriorityLow: 0, PriorityMedium: 0, PriorityHigh: 0, PriorityCritical: 0,
		},
		ScoreRanges: map[string]int{
			"0-30 (Low)":        0,
			"31-60 (Medium)":    0,
			"61-80 (High)":      0,
			"81-100 (Critical)": 0,
		},
	}
	if len(scored) == 0 {
		return dist
	}

	scores := make([]float64, len(scored))
	for i, s := range scored {
		scores[i] = s.Score
		dist.PriorityBreakdown[s.Priority]++
		switch {
		case s.Score <= 30:
			dist.ScoreRanges["0-30 (Low)"]++
		case s.Score <= 60:
			dist.ScoreRanges["31-60 (Medium)"]++
		case s.Score <= 80:
			dist.ScoreRanges["61-80 (High)"]++
		default:
			dist.ScoreRanges["81-100 (Critical)"]++
		}
	}
	dist.AverageScore = round1(mean(scores))
	dist.MedianScore = round1(median(scores))
	return dist
}

// subScores computes the six component scores for one lead, applying the
// documented defaults for missing fields.
func (ls *LeadScorer) subScores(lead types.Record) leadSubScores {
	employees := lead.Float("NumberOfEmployees", 1)
	visits := lead.Float("Website_Visits__c", 0)
	downloads := lead.Float("Content_Downloads__c", 0)
	revenue := lead.Float("AnnualRevenue", 0)
	days := lead.Float("Days_Since_Last_Activity__c", 30)
	opens := lead.Float("Email_Opens__c", 0)

	industry := 0.4
	if targetIndustries[lead.Str("Industry", "")] {
		industry = 1.0
	}

	return leadSubScores{
		companySize:  math.Log1p(employees) / math.Log1p(10000),
		engagement:   clip(visits/50*0.6+downloads/10*0.4, 0, 1),
		industry:     industry,
		budget:       clip(math.Log1p(revenue)/math.Log1p(100000000), 0, 1),
		responseTime: clip(1-days/60, 0, 1),
		email:        clip(opens/30, 0, 1),
	}
}

// priorityFor maps a score to its tier. Bin edges are inclusive on the
// upper bound: exactly 30 is Low and exactly 60 is Medium.
func priorityFor(score float64) Priority {
	switch {
	case score <= 30:
		return PriorityLow
	case score <= 60:
		return PriorityMedium
	case score <= 80:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}
