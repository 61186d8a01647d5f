package crm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/saleslens/saleslens/internal/config"
	"github.com/saleslens/saleslens/internal/resilience"
	"github.com/saleslens/saleslens/internal/types"
)

// Fields fetched per object. Salesforce rejects SELECT *.
var soqlFields = map[string]string{
	"Lead": "Id, FirstName, LastName, Company, Status, LeadSource, Industry, " +
		"Rating, Email, AnnualRevenue, NumberOfEmployees, CreatedDate, " +
		"LastActivityDate, Website_Visits__c, Email_Opens__c, " +
		"Content_Downloads__c, Days_Since_Last_Activity__c",
	"Opportunity": "Id, Name, StageName, Amount, Probability, CloseDate, AccountId, " +
		"Type, IsClosed, IsWon, ForecastCategory, CreatedDate, Days_In_Stage__c",
	"Account": "Id, Name, Industry, AnnualRevenue, NumberOfEmployees, Type, " +
		"Rating, CreatedDate, LastActivityDate",
	"Case": "Id, CaseNumber, AccountId, Subject, Status, Priority, Type, Origin, " +
		"CreatedDate, IsClosed, Customer_Satisfaction__c",
	"Task": "Id, WhoId, WhatId, Subject, ActivityDate, Status, Type",
}

// Service name used for retry policies and degradation tracking.
const salesforceService = "salesforce"

// RESTClient talks to the Salesforce REST API with circuit breaking and
// connection pooling.
type RESTClient struct {
	cfg   config.Salesforce
	token string
	pool  *resilience.ConnectionPool
}

// NewRESTClient authenticates against the org using the OAuth password
// grant and returns a ready client.
func NewRESTClient(ctx context.Context, cfg config.Salesforce) (*RESTClient, error) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 3,
	})
	pool := resilience.NewConnectionPool(10, 20, 30*time.Second, cb)

	// Salesforce enforces strict API quotas, so retries back off slowly.
	resilience.RegisterServicePolicy(salesforceService, resilience.SlowRetryPolicy)
	resilience.RegisterService(salesforceService, nil)

	client := &RESTClient{cfg: cfg, pool: pool}
	if err := client.authenticate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return client, nil
}

func (rc *RESTClient) authenticate(ctx context.Context) error {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {rc.cfg.ClientID},
		"client_secret": {rc.cfg.ClientSecret},
		"username":      {rc.cfg.Username},
		"password":      {rc.cfg.Password},
	}

	tokenURL := strings.TrimSuffix(rc.cfg.InstanceURL, "/") + "/services/oauth2/token"
	resp, err := rc.pool.DoRequestWithBody(ctx, http.MethodPost, tokenURL,
		[]byte(form.Encode()), map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		})
	if err != nil {
		return fmt.Errorf("salesforce auth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("salesforce auth failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var auth struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return fmt.Errorf("decode auth response: %w", err)
	}
	rc.token = auth.AccessToken
	if auth.InstanceURL != "" {
		rc.cfg.InstanceURL = auth.InstanceURL
	}
	return nil
}

func (rc *RESTClient) Leads(ctx context.Context, limit int) ([]types.Record, error) {
	return rc.queryObject(ctx, "Lead", limit)
}

func (rc *RESTClient) Opportunities(ctx context.Context, limit int) ([]types.Record, error) {
	return rc.queryObject(ctx, "Opportunity", limit)
}

func (rc *RESTClient) Accounts(ctx context.Context, limit int) ([]types.Record, error) {
	return rc.queryObject(ctx, "Account", limit)
}

func (rc *RESTClient) Cases(ctx context.Context, limit int) ([]types.Record, error) {
	return rc.queryObject(ctx, "Case", limit)
}

func (rc *RESTClient) Activities(ctx context.Context, limit int) ([]types.Record, error) {
	return rc.queryObject(ctx, "Task", limit)
}

func (rc *RESTClient) queryObject(ctx context.Context, object string, limit int) ([]types.Record, error) {
	soql := fmt.Sprintf("SELECT %s FROM %s", soqlFields[object], object)
	if limit > 0 {
		soql += fmt.Sprintf(" LIMIT %d", limit)
	}
	return rc.Query(ctx, soql)
}

// Query runs a SOQL query, following pagination until the full result
// set is collected.
func (rc *RESTClient) Query(ctx context.Context, soql string) ([]types.Record, error) {
	next := fmt.Sprintf("/services/data/%s/query?q=%s", rc.cfg.APIVersion, url.QueryEscape(soql))

	var records []types.Record
	for next != "" {
		var resp *http.Response
		err := resilience.ExecuteWithRetry(ctx, salesforceService, func() error {
			var reqErr error
			resp, reqErr = rc.pool.DoRequest(ctx, http.MethodGet, rc.cfg.InstanceURL+next, rc.headers())
			return reqErr
		})
		resilience.RecordRequest(salesforceService, err == nil)
		if err != nil {
			return nil, fmt.Errorf("salesforce query: %w", err)
		}

		var page struct {
			Done           bool           `json:"done"`
			NextRecordsURL string         `json:"nextRecordsUrl"`
			Records        []types.Record `json:"records"`
		}
		err = decodeResponse(resp, &page)
		if err != nil {
			return nil, err
		}

		for _, rec := range page.Records {
			// The API decorates every row with an attributes object.
			delete(rec, "attributes")
			records = append(records, rec)
		}

		next = ""
		if !page.Done {
			next = page.NextRecordsURL
		}
	}
	return records, nil
}

// UpdateRecord patches fields on a record.
func (rc *RESTClient) UpdateRecord(ctx context.Context, object, id string, fields types.Record) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal %s update: %w", object, err)
	}

	u := fmt.Sprintf("%s/services/data/%s/sobjects/%s/%s",
		rc.cfg.InstanceURL, rc.cfg.APIVersion, object, id)
	var resp *http.Response
	err = resilience.ExecuteWithRetry(ctx, salesforceService, func() error {
		var reqErr error
		resp, reqErr = rc.pool.DoRequestWithBody(ctx, http.MethodPatch, u, body, rc.headers())
		return reqErr
	})
	resilience.RecordRequest(salesforceService, err == nil)
	if err != nil {
		return fmt.Errorf("salesforce update %s %s: %w", object, id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		detail, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("salesforce update %s %s: status %d, body: %s",
			object, id, resp.StatusCode, string(detail))
	}
	return nil
}

// CreateRecord inserts a record and returns the new ID.
func (rc *RESTClient) CreateRecord(ctx context.Context, object string, fields types.Record) (string, error) {
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal %s create: %w", object, err)
	}

	u := fmt.Sprintf("%s/services/data/%s/sobjects/%s",
		rc.cfg.InstanceURL, rc.cfg.APIVersion, object)
	resp, err := rc.pool.DoRequestWithBody(ctx, http.MethodPost, u, body, rc.headers())
	if err != nil {
		return "", fmt.Errorf("salesforce create %s: %w", object, err)
	}

	var created struct {
		ID      string `json:"id"`
		Success bool   `json:"success"`
	}
	if err := decodeResponse(resp, &created); err != nil {
		return "", err
	}
	if !created.Success {
		return "", fmt.Errorf("salesforce create %s reported failure", object)
	}
	return created.ID, nil
}

// PoolStats exposes connection pool statistics for the stats endpoint.
func (rc *RESTClient) PoolStats() map[string]interface{} {
	return rc.pool.GetStats()
}

func (rc *RESTClient) Close() error {
	return rc.pool.Close()
}

func (rc *RESTClient) headers() map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + rc.token,
		"Content-Type":  "application/json",
		"User-Agent":    "SalesLens/1.0",
	}
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("salesforce API error: status %d, body: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode salesforce response: %w", err)
	}
	return nil
}
