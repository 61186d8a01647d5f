// Package writeback pushes analytics results back into the CRM: lead
// scores, churn risk flags and follow-up tasks.
package writeback

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/crm"
	"github.com/saleslens/saleslens/internal/types"
)

// UpdateResult counts the outcome of a writeback pass. Partial failure
// is expected; individual record errors are logged and counted rather
// than aborting the run.
type UpdateResult struct {
	Updated int `json:"updated,omitempty"`
	Created int `json:"created,omitempty"`
	Errors  int `json:"errors"`
}

// FullResult groups the outcome of a complete writeback cycle.
type FullResult struct {
	LeadScores        UpdateResult `json:"lead_scores"`
	ChurnRisk         UpdateResult `json:"churn_risk"`
	FollowUpTasks     UpdateResult `json:"follow_up_tasks"`
	InterventionTasks UpdateResult `json:"intervention_tasks"`
}

// Service writes analytics results to the CRM through a DataSource.
type Service struct {
	source crm.DataSource
	now    func() time.Time
}

// NewService creates a writeback service.
func NewService(source crm.DataSource) *Service {
	return &Service{source: source, now: time.Now}
}

// UpdateLeadScores writes each lead's score and priority onto its Lead
// record.
func (s *Service) UpdateLeadScores(ctx context.Context, scored []analytics.ScoredLead) UpdateResult {
	var result UpdateResult
	stamp := s.now().UTC().Format(time.RFC3339)

	for _, lead := range scored {
		id := lead.Lead.Str("Id", "")
		err := s.source.UpdateRecord(ctx, "Lead", id, types.Record{
			"Lead_Score__c":       lead.Score,
			"Priority__c":         string(lead.Priority),
			"Last_Scored_Date__c": stamp,
		})
		if err != nil {
			slog.Error("Failed to update lead", "id", id, "error", err)
			result.Errors++
			continue
		}
		result.Updated++
	}

	slog.Info("Lead score writeback", "updated", result.Updated, "errors", result.Errors)
	return result
}

// UpdateChurnRisk writes each account's churn score and level onto its
// Account record.
func (s *Service) UpdateChurnRisk(ctx context.Context, accounts []analytics.ChurnAccount) UpdateResult {
	var result UpdateResult
	stamp := s.now().UTC().Format(time.RFC3339)

	for _, acct := range accounts {
		id := acct.Account.Str("Id", "")
		err := s.source.UpdateRecord(ctx, "Account", id, types.Record{
			"Churn_Risk_Score__c":    acct.Score,
			"Churn_Risk_Level__c":    string(acct.Level),
			"Last_Churn_Analysis__c": stamp,
		})
		if err != nil {
			slog.Error("Failed to update account", "id", id, "error", err)
			result.Errors++
			continue
		}
		result.Updated++
	}

	slog.Info("Churn risk writeback", "updated", result.Updated, "errors", result.Errors)
	return result
}

// CreateFollowUpTasks creates a Task for each lead, intended for the
// Critical and High priority subset.
func (s *Service) CreateFollowUpTasks(ctx context.Context, leads []analytics.ScoredLead) UpdateResult {
	var result UpdateResult
	today := s.now().UTC().Format("2006-01-02")

	for _, lead := range leads {
		id := lead.Lead.Str("Id", "")
		taskPriority := "Normal"
		if lead.Priority == analytics.PriorityCritical {
			taskPriority = "High"
		}

		description := fmt.Sprintf(
			"Automated task created by analytics engine.\nLead: %s %s\nCompany: %s\nScore: %v\nPriority: %s\nSource: %s",
			lead.Lead.Str("FirstName", ""),
			lead.Lead.Str("LastName", ""),
			lead.Lead.Str("Company", "N/A"),
			lead.Score,
			lead.Priority,
			lead.Lead.Str("LeadSource", "N/A"))

		_, err := s.source.CreateRecord(ctx, "Task", types.Record{
			"WhoId":        id,
			"Subject":      fmt.Sprintf("Follow up: %s-priority lead (Score: %v)", lead.Priority, lead.Score),
			"Description":  description,
			"Priority":     taskPriority,
			"Status":       "Not Started",
			"ActivityDate": today,
			"Type":         "Call",
		})
		if err != nil {
			slog.Error("Failed to create follow-up task", "lead_id", id, "error", err)
			result.Errors++
			continue
		}
		result.Created++
	}

	slog.Info("Follow-up tasks", "created", result.Created, "errors", result.Errors)
	return result
}

// CreateInterventionTasks creates a Task for each high churn-risk
// account.
func (s *Service) CreateInterventionTasks(ctx context.Context, accounts []analytics.ChurnAccount) UpdateResult {
	var result UpdateResult
	today := s.now().UTC().Format("2006-01-02")

	for _, acct := range accounts {
		factors := make([]string, 0, len(acct.RiskFactors))
		for _, f := range acct.RiskFactors {
			factors = append(factors, "- "+f)
		}

		_, err := s.source.CreateRecord(ctx, "Task", types.Record{
			"WhatId": acct.Account.Str("Id", ""),
			"Subject": fmt.Sprintf("Churn intervention: %s",
				acct.Account.Str("Name", "Unknown")),
			"Description": fmt.Sprintf(
				"Account flagged as high churn risk.\nRisk Score: %v\nRisk Factors:\n%s",
				acct.Score, strings.Join(factors, "\n")),
			"Priority":     "High",
			"Status":       "Not Started",
			"ActivityDate": today,
			"Type":         "Call",
		})
		if err != nil {
			slog.Error("Failed to create intervention task",
				"account_id", acct.Account.Str("Id", ""), "error", err)
			result.Errors++
			continue
		}
		result.Created++
	}

	slog.Info("Intervention tasks", "created", result.Created, "errors", result.Errors)
	return result
}

// ActionableLeads returns the Critical and High priority subset that
// warrants a follow-up task.
func ActionableLeads(scored []analytics.ScoredLead) []analytics.ScoredLead {
	var high []analytics.ScoredLead
	for _, lead := range scored {
		if lead.Priority == analytics.PriorityCritical || lead.Priority == analytics.PriorityHigh {
			high = append(high, lead)
		}
	}
	return high
}

// HighRiskAccounts returns the accounts flagged at High churn risk.
func HighRiskAccounts(churn []analytics.ChurnAccount) []analytics.ChurnAccount {
	var high []analytics.ChurnAccount
	for _, acct := range churn {
		if acct.Level == analytics.RiskHigh {
			high = append(high, acct)
		}
	}
	return high
}

// RunFull executes a complete writeback cycle: scores, churn flags and
// follow-up tasks for the high-priority subsets.
func (s *Service) RunFull(ctx context.Context, scored []analytics.ScoredLead, churn []analytics.ChurnAccount) FullResult {
	result := FullResult{
		LeadScores:        s.UpdateLeadScores(ctx, scored),
		ChurnRisk:         s.UpdateChurnRisk(ctx, churn),
		FollowUpTasks:     s.CreateFollowUpTasks(ctx, ActionableLeads(scored)),
		InterventionTasks: s.CreateInterventionTasks(ctx, HighRiskAccounts(churn)),
	}

	slog.Info("Full writeback complete",
		"leads_updated", result.LeadScores.Updated,
		"accounts_updated", result.ChurnRisk.Updated,
		"tasks_created", result.FollowUpTasks.Created+result.InterventionTasks.Created)
	return result
}
