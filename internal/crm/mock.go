package crm

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saleslens/saleslens/internal/types"
)

// DefaultMockSeed keeps mock datasets stable across restarts so demo
// dashboards do not reshuffle on every deploy.
const DefaultMockSeed = 42

// Default mock dataset sizes.
const (
	defaultMockAccounts      = 25
	defaultMockLeads         = 100
	defaultMockOpportunities = 60
	defaultMockCases         = 40
)

var (
	industries = []string{
		"Technology", "Healthcare", "Finance", "Manufacturing", "Retail",
		"Education", "Energy", "Media", "Real Estate", "Consulting",
	}

	leadSources = []string{
		"Web", "Phone Inquiry", "Partner Referral", "Purchased List",
		"Event", "LinkedIn", "Google Ads", "Content Download",
	}

	leadStatuses = []string{"New", "Contacted", "Qualified", "Unqualified", "Nurturing"}

	caseTypes = []string{"Problem", "Feature Request", "Question", "Billing"}

	companyNames = []string{
		"Acme Corp", "Globex Industries", "Initech Solutions", "Umbrella Ltd",
		"Wayne Enterprises", "Stark Industries", "Oscorp Technologies",
		"Cyberdyne Systems", "Soylent Corp", "Massive Dynamic",
		"Hooli", "Pied Piper", "Aviato", "Raviga Capital", "Endframe",
		"TechNova", "DataStream Inc", "CloudFirst Ltd", "NexGen Solutions",
		"Quantum Analytics", "ByteForge", "Synapse Digital", "Pinnacle Systems",
		"Horizon Tech", "BlueShift AI",
	}

	firstNames = []string{
		"James", "Sarah", "Michael", "Emma", "David", "Olivia", "Robert",
		"Sophia", "William", "Isabella", "John", "Mia", "Richard", "Charlotte",
		"Thomas", "Amelia", "Daniel", "Harper", "Matthew", "Evelyn",
	}

	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller",
		"Davis", "Rodriguez", "Martinez", "Anderson", "Taylor", "Thomas",
		"Moore", "Jackson", "Martin", "Lee", "Thompson", "White", "Harris",
	}

	jobTitles = []string{
		"CEO", "CTO", "VP Sales", "Director of IT", "Marketing Manager",
		"Operations Lead", "CFO", "Head of Engineering", "Product Manager",
	}

	caseSubjects = []string{
		"Login issue", "Data export failure", "API rate limit",
		"Integration error", "Performance degradation",
		"Feature request: bulk import", "Billing discrepancy",
		"SSO configuration", "Report not loading", "Mobile app crash",
	}
)

// MockClient is a seeded, in-memory CRM with realistic interrelated
// Leads, Opportunities, Accounts, Cases and Activities. Writes mutate
// the in-memory dataset so writeback can be exercised end to end.
type MockClient struct {
	mu sync.RWMutex

	accounts      []types.Record
	leads         []types.Record
	opportunities []types.Record
	cases         []types.Record
	activities    []types.Record
}

// NewMockClient generates a full dataset from the given seed.
func NewMockClient(seed int64) *MockClient {
	mc := &MockClient{}
	r := rand.New(rand.NewSource(seed))
	mc.accounts = mc.generateAccounts(r, defaultMockAccounts)
	mc.leads = mc.generateLeads(r, defaultMockLeads)
	mc.opportunities = mc.generateOpportunities(r, defaultMockOpportunities)
	mc.cases = mc.generateCases(r, defaultMockCases)
	mc.activities = mc.generateActivities(r)
	return mc
}

func (mc *MockClient) Leads(_ context.Context, limit int) ([]types.Record, error) {
	return mc.snapshot(mc.leads, limit), nil
}

func (mc *MockClient) Opportunities(_ context.Context, limit int) ([]types.Record, error) {
	return mc.snapshot(mc.opportunities, limit), nil
}

func (mc *MockClient) Accounts(_ context.Context, limit int) ([]types.Record, error) {
	return mc.snapshot(mc.accounts, limit), nil
}

func (mc *MockClient) Cases(_ context.Context, limit int) ([]types.Record, error) {
	return mc.snapshot(mc.cases, limit), nil
}

func (mc *MockClient) Activities(_ context.Context, limit int) ([]types.Record, error) {
	return mc.snapshot(mc.activities, limit), nil
}

// UpdateRecord merges fields into the matching record.
func (mc *MockClient) UpdateRecord(_ context.Context, object, id string, fields types.Record) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	collection := mc.collection(object)
	if collection == nil {
		return fmt.Errorf("unknown object type %q", object)
	}
	for _, rec := range collection {
		if rec.Str("Id", "") == id {
			for k, v := range fields {
				rec[k] = v
			}
			return nil
		}
	}
	return fmt.Errorf("%s %s not found", object, id)
}

// CreateRecord appends a record with a freshly minted ID.
func (mc *MockClient) CreateRecord(_ context.Context, object string, fields types.Record) (string, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	rec := fields.Clone()
	id := "NEW" + mockHex(15)
	rec["Id"] = id

	switch object {
	case "Lead":
		mc.leads = append(mc.leads, rec)
	case "Opportunity":
		mc.opportunities = append(mc.opportunities, rec)
	case "Account":
		mc.accounts = append(mc.accounts, rec)
	case "Case":
		mc.cases = append(mc.cases, rec)
	case "Task":
		mc.activities = append(mc.activities, rec)
	default:
		return "", fmt.Errorf("unknown object type %q", object)
	}
	return id, nil
}

func (mc *MockClient) Close() error { return nil }

func (mc *MockClient) collection(object string) []types.Record {
	switch object {
	case "Lead":
		return mc.leads
	case "Opportunity":
		return mc.opportunities
	case "Account":
		return mc.accounts
	case "Case":
		return mc.cases
	case "Task":
		return mc.activities
	}
	return nil
}

// snapshot returns cloned records so callers cannot mutate the dataset
// behind the lock's back.
func (mc *MockClient) snapshot(collection []types.Record, limit int) []types.Record {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	n := len(collection)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]types.Record, n)
	for i := 0; i < n; i++ {
		out[i] = collection[i].Clone()
	}
	return out
}

func (mc *MockClient) generateAccounts(r *rand.Rand, count int) []types.Record {
	accounts := make([]types.Record, 0, count)
	for i := 0; i < count; i++ {
		name := companyNames[i%len(companyNames)]
		if i >= len(companyNames) {
			name = fmt.Sprintf("%s %d", name, i/len(companyNames)+1)
		}

		// Health profiles: ~25% disengaged, ~25% at risk, ~50% healthy.
		var lastActivityDays int
		var rating, accType string
		switch {
		case float64(i) < float64(count)*0.25:
			lastActivityDays = randBetween(r, 60, 120)
			rating = "Cold"
			accType = "Customer"
		case float64(i) < float64(count)*0.50:
			lastActivityDays = randBetween(r, 30, 70)
			rating = pick(r, "Cold", "Warm")
			accType = "Customer"
		default:
			lastActivityDays = randBetween(r, 1, 20)
			rating = pick(r, "Hot", "Warm")
			accType = pick(r, "Customer", "Prospect", "Partner")
		}

		accounts = append(accounts, types.Record{
			"Id":       "001" + mockHex(15),
			"Name":     name,
			"Industry": pick(r, industries...),
			"AnnualRevenue": pickF(r,
				500_000, 1_000_000, 5_000_000, 10_000_000, 50_000_000,
				100_000_000, 500_000_000),
			"NumberOfEmployees": pickF(r, 10, 50, 100, 250, 500, 1000, 5000, 10000),
			"Type":              accType,
			"BillingCountry": pick(r,
				"United Kingdom", "United States", "Germany",
				"France", "Australia", "Canada"),
			"CreatedDate":      pastDate(r, 365),
			"LastActivityDate": time.Now().AddDate(0, 0, -lastActivityDays).Format(time.RFC3339),
			"Rating":           rating,
		})
	}
	return accounts
}

func (mc *MockClient) generateLeads(r *rand.Rand, count int) []types.Record {
	leads := make([]types.Record, 0, count)
	for i := 0; i < count; i++ {
		first := pick(r, firstNames...)
		last := pick(r, lastNames...)
		company := pick(r, companyNames...)
		status := pick(r, leadStatuses...)

		// Profiles: ~15% hot, ~25% warm, ~30% cold, ~30% dead.
		var employees, revenue float64
		var industry, rating string
		var visits, opens, downloads, daysInactive int
		switch {
		case float64(i) < float64(count)*0.15:
			employees = pickF(r, 1000, 5000, 10000)
			revenue = pickF(r, 5_000_000, 10_000_000, 50_000_000)
			industry = pick(r, "Technology", "Finance", "Healthcare", "Consulting")
			visits = randBetween(r, 25, 50)
			opens = randBetween(r, 15, 30)
			downloads = randBetween(r, 5, 10)
			daysInactive = randBetween(r, 0, 5)
			rating = "Hot"
		case float64(i) < float64(count)*0.40:
			employees = pickF(r, 100, 250, 500, 1000)
			revenue = pickF(r, 1_000_000, 5_000_000)
			industry = pick(r, industries...)
			visits = randBetween(r, 10, 30)
			opens = randBetween(r, 5, 15)
			downloads = randBetween(r, 2, 6)
			daysInactive = randBetween(r, 5, 25)
			rating = "Warm"
		case float64(i) < float64(count)*0.70:
			employees = pickF(r, 10, 50, 100)
			revenue = pickF(r, 100_000, 500_000)
			industry = pick(r, "Retail", "Energy", "Real Estate", "Manufacturing")
			visits = randBetween(r, 1, 8)
			opens = randBetween(r, 0, 4)
			downloads = randBetween(r, 0, 1)
			daysInactive = randBetween(r, 20, 45)
			rating = "Cold"
		default:
			employees = pickF(r, 1, 5, 10)
			revenue = pickF(r, 10_000, 50_000, 100_000)
			industry = pick(r, "Media", "Real Estate", "Energy")
			visits = randBetween(r, 0, 2)
			daysInactive = randBetween(r, 40, 60)
			rating = "Cold"
		}

		email := fmt.Sprintf("%s.%s@%s.com",
			strings.ToLower(first), strings.ToLower(last),
			strings.ReplaceAll(strings.ToLower(company), " ", ""))

		lead := types.Record{
			"Id":                          "00Q" + mockHex(15),
			"FirstName":                   first,
			"LastName":                    last,
			"Company":                     company,
			"Title":                       pick(r, jobTitles...),
			"Email":                       email,
			"Phone":                       fmt.Sprintf("+44 7%03d %06d", randBetween(r, 100, 999), randBetween(r, 100000, 999999)),
			"Status":                      status,
			"LeadSource":                  pick(r, leadSources...),
			"Industry":                    industry,
			"AnnualRevenue":               revenue,
			"NumberOfEmployees":           employees,
			"Rating":                      rating,
			"CreatedDate":                 pastDate(r, 180),
			"LastActivityDate":            pastDate(r, 14),
			"IsConverted":                 status == "Qualified" && r.Float64() > 0.5,
			"Website_Visits__c":           visits,
			"Email_Opens__c":              opens,
			"Content_Downloads__c":        downloads,
			"Days_Since_Last_Activity__c": daysInactive,
		}
		if status == "Qualified" {
			lead["ConvertedDate"] = pastDate(r, 30)
		}
		leads = append(leads, lead)
	}
	return leads
}

func (mc *MockClient) generateOpportunities(r *rand.Rand, count int) []types.Record {
	opps := make([]types.Record, 0, count)
	for i := 0; i < count; i++ {
		stage := pick(r, "Prospecting", "Qualification", "Needs Analysis",
			"Proposal", "Negotiation", "Closed Won", "Closed Lost")
		isClosed := strings.HasPrefix(stage, "Closed")
		account := mc.accounts[r.Intn(len(mc.accounts))]

		opp := types.Record{
			"Id":          "006" + mockHex(15),
			"Name":        account.Str("Name", "") + " - New Deal",
			"AccountId":   account.Str("Id", ""),
			"AccountName": account.Str("Name", ""),
			"StageName":   stage,
			"Amount": pickF(r, 10_000, 25_000, 50_000, 75_000, 100_000,
				150_000, 250_000, 500_000, 750_000, 1_000_000),
			"Probability":      stageProbability(stage),
			"CloseDate":        closeDate(r, isClosed),
			"CreatedDate":      pastDate(r, 180),
			"Type":             pick(r, "New Business", "Existing Business", "Renewal"),
			"LeadSource":       pick(r, leadSources...),
			"IsClosed":         isClosed,
			"IsWon":            stage == "Closed Won",
			"ForecastCategory": forecastCategory(stage),
			"Days_In_Stage__c": randBetween(r, 1, 45),
		}
		if !isClosed {
			opp["NextStep"] = pick(r, "Schedule demo", "Send proposal",
				"Follow up call", "Technical review", "Contract negotiation")
		}
		opps = append(opps, opp)
	}
	return opps
}

func (mc *MockClient) generateCases(r *rand.Rand, count int) []types.Record {
	cases := make([]types.Record, 0, count)
	if len(mc.accounts) == 0 {
		return cases
	}

	// The first quarter of accounts are the disengaged cohort; problems
	// concentrate there.
	atRiskCutoff := len(mc.accounts) / 4
	if atRiskCutoff < 1 {
		atRiskCutoff = 1
	}
	atRisk := mc.accounts[:atRiskCutoff]
	healthy := mc.accounts[atRiskCutoff:]

	for i := 0; i < count; i++ {
		var account types.Record
		var priority, status string
		var csat float64
		rated := false
		if float64(i) < float64(count)*0.6 {
			account = atRisk[r.Intn(len(atRisk))]
			priority = pick(r, "High", "Critical", "High", "Medium")
			status = pick(r, "New", "Working", "Escalated", "Closed")
			if status == "Closed" {
				csat = pickF(r, 1, 1, 2, 2, 3)
				rated = true
			}
		} else {
			account = healthy[r.Intn(len(healthy))]
			priority = pick(r, "Low", "Medium", "Low")
			status = pick(r, "Closed", "Closed", "Working", "New")
			if status == "Closed" {
				csat = pickF(r, 3, 4, 4, 5, 5)
				rated = true
			}
		}

		c := types.Record{
			"Id":          "500" + mockHex(15),
			"CaseNumber":  fmt.Sprintf("CS-%05d", randBetween(r, 10000, 99999)),
			"AccountId":   account.Str("Id", ""),
			"AccountName": account.Str("Name", ""),
			"Subject":     pick(r, caseSubjects...),
			"Status":      status,
			"Priority":    priority,
			"Type":        pick(r, caseTypes...),
			"Origin":      pick(r, "Web", "Phone", "Email", "Chat"),
			"CreatedDate": pastDate(r, 90),
			"IsClosed":    status == "Closed",
		}
		if status == "Closed" {
			c["ClosedDate"] = pastDate(r, 7)
			c["Resolution_Time_Hours__c"] = randBetween(r, 1, 168)
		}
		if rated {
			c["Customer_Satisfaction__c"] = csat
		}
		cases = append(cases, c)
	}
	return cases
}

func (mc *MockClient) generateActivities(r *rand.Rand) []types.Record {
	var activities []types.Record

	leadSubjects := []string{
		"Email: Introduction", "Call: Discovery", "Meeting: Demo",
		"Email: Follow up", "Call: Qualification", "Email: Proposal sent",
	}
	for _, lead := range sample(r, mc.leads, 40) {
		for n := randBetween(r, 1, 5); n > 0; n-- {
			activities = append(activities, types.Record{
				"Id":           "00T" + mockHex(15),
				"WhoId":        lead.Str("Id", ""),
				"Subject":      pick(r, leadSubjects...),
				"ActivityDate": pastDate(r, 60),
				"Status":       pick(r, "Completed", "Not Started"),
				"Type":         pick(r, "Email", "Call", "Meeting"),
			})
		}
	}

	oppSubjects := []string{
		"Call: Negotiation", "Meeting: Contract review",
		"Email: Pricing discussion", "Meeting: Technical demo",
	}
	for _, opp := range sample(r, mc.opportunities, 30) {
		for n := randBetween(r, 1, 3); n > 0; n-- {
			activities = append(activities, types.Record{
				"Id":           "00T" + mockHex(15),
				"WhatId":       opp.Str("Id", ""),
				"Subject":      pick(r, oppSubjects...),
				"ActivityDate": pastDate(r, 30),
				"Status":       pick(r, "Completed", "Not Started"),
				"Type":         pick(r, "Email", "Call", "Meeting"),
			})
		}
	}
	return activities
}

func stageProbability(stage string) float64 {
	switch stage {
	case "Prospecting":
		return 10
	case "Qualification":
		return 25
	case "Needs Analysis":
		return 50
	case "Proposal":
		return 65
	case "Negotiation":
		return 80
	case "Closed Won":
		return 100
	default:
		return 0
	}
}

func forecastCategory(stage string) string {
	switch stage {
	case "Needs Analysis":
		return "Best Case"
	case "Proposal", "Negotiation":
		return "Commit"
	case "Closed Won":
		return "Closed"
	case "Closed Lost":
		return "Omitted"
	default:
		return "Pipeline"
	}
}

func mockHex(n int) string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:n])
}

func pick(r *rand.Rand, options ...string) string {
	return options[r.Intn(len(options))]
}

func pickF(r *rand.Rand, options ...float64) float64 {
	return options[r.Intn(len(options))]
}

func randBetween(r *rand.Rand, lo, hi int) int {
	return lo + r.Intn(hi-lo+1)
}

func pastDate(r *rand.Rand, maxDaysAgo int) string {
	return time.Now().AddDate(0, 0, -r.Intn(maxDaysAgo+1)).Format(time.RFC3339)
}

func closeDate(r *rand.Rand, isClosed bool) string {
	days := randBetween(r, 0, 90)
	if isClosed {
		return time.Now().AddDate(0, 0, -days).Format(time.RFC3339)
	}
	return time.Now().AddDate(0, 0, days).Format(time.RFC3339)
}

func sample(r *rand.Rand, records []types.Record, n int) []types.Record {
	if n >= len(records) {
		return records
	}
	idx := r.Perm(len(records))[:n]
	out := make([]types.Record, 0, n)
	for _, i := range idx {
		out = append(out, records[i])
	}
	return out
}
