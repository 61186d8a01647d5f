// Package config defines service configuration and its layered loading:
// defaults, then an optional YAML file, then environment variables.
package config

import (
	"fmt"
	"time"
)

// Salesforce holds CRM connection settings. When UseMock is true the
// credentials are ignored and the seeded mock data source is used.
type Salesforce struct {
	UseMock      bool          `koanf:"use_mock"`
	InstanceURL  string        `koanf:"instance_url"`
	APIVersion   string        `koanf:"api_version"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	Username     string        `koanf:"username"`
	Password     string        `koanf:"password"`
	Timeout      time.Duration `koanf:"timeout"`
}

// Scoring holds the analytics tunables.
type Scoring struct {
	// LeadWeights maps lead scoring factor names to their weights. Keys
	// must match the factor names used by the lead scorer.
	LeadWeights map[string]float64 `koanf:"lead_weights"`

	// ChurnHighThreshold and ChurnMediumThreshold are the risk level cut
	// points on the 0-1 churn score.
	ChurnHighThreshold   float64 `koanf:"churn_high_threshold"`
	ChurnMediumThreshold float64 `koanf:"churn_medium_threshold"`

	// Stages is the ordered opportunity stage list.
	Stages []string `koanf:"stages"`

	// CoverageQuota is the open-pipeline value treated as full coverage
	// by the pipeline health score.
	CoverageQuota float64 `koanf:"coverage_quota"`
}

// Notify holds alerting channel settings.
type Notify struct {
	SlackWebhookURL string   `koanf:"slack_webhook_url"`
	SMTPHost        string   `koanf:"smtp_host"`
	SMTPPort        int      `koanf:"smtp_port"`
	SMTPFrom        string   `koanf:"smtp_from"`
	EmailTo         []string `koanf:"email_to"`
	HistoryLimit    int      `koanf:"history_limit"`
}

// Config contains the full process configuration.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// CORSOrigins lists allowed origins for browser clients.
	CORSOrigins []string `koanf:"cors_origins"`

	Salesforce Salesforce `koanf:"salesforce"`
	Scoring    Scoring    `koanf:"scoring"`
	Notify     Notify     `koanf:"notify"`

	// CacheTTL bounds how long analysis responses are served from cache.
	CacheTTL time.Duration `koanf:"cache_ttl"`

	// RateLimitPerMinute caps requests per client IP. RedisAddr enables
	// the distributed limiter; empty means the in-process fallback.
	RateLimitPerMinute int    `koanf:"rate_limit_per_minute"`
	RedisAddr          string `koanf:"redis_addr"`

	// ExportDir is where scheduled analysis snapshots are written.
	ExportDir string `koanf:"export_dir"`

	// AnalysisSchedule and SummarySchedule are cron expressions for the
	// recurring full analysis run and the daily alert summary.
	AnalysisSchedule string `koanf:"analysis_schedule"`
	SummarySchedule  string `koanf:"summary_schedule"`

	// WritebackEnabled gates pushing scores back to the CRM.
	WritebackEnabled bool `koanf:"writeback_enabled"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Addr:        ":8000",
		LogLevel:    "info",
		CORSOrigins: []string{"*"},
		Salesforce: Salesforce{
			UseMock:    true,
			APIVersion: "v58.0",
			Timeout:    30 * time.Second,
		},
		Scoring: Scoring{
			ChurnHighThreshold:   0.7,
			ChurnMediumThreshold: 0.4,
			CoverageQuota:        500_000,
		},
		Notify: Notify{
			SMTPPort:     587,
			HistoryLimit: 500,
		},
		CacheTTL:           5 * time.Minute,
		RateLimitPerMinute: 100,
		ExportDir:          "exports",
		AnalysisSchedule:   "0 7 * * *",
		SummarySchedule:    "0 17 * * *",
		WritebackEnabled:   false,
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behaviour.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate_limit_per_minute must be positive")
	}
	s := c.Scoring
	if s.ChurnHighThreshold < s.ChurnMediumThreshold {
		return fmt.Errorf("churn_high_threshold %v below churn_medium_threshold %v",
			s.ChurnHighThreshold, s.ChurnMediumThreshold)
	}
	if s.ChurnHighThreshold > 1 || s.ChurnMediumThreshold < 0 {
		return fmt.Errorf("churn thresholds must lie within [0, 1]")
	}
	for name, w := range s.LeadWeights {
		if w < 0 {
			return fmt.Errorf("lead weight %q must not be negative", name)
		}
	}
	if s.CoverageQuota < 0 {
		return fmt.Errorf("coverage_quota must not be negative")
	}
	if !c.Salesforce.UseMock && c.Salesforce.InstanceURL == "" {
		return fmt.Errorf("salesforce.instance_url is required when use_mock is false")
	}
	return nil
}
