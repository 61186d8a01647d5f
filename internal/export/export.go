// Package export writes analysis snapshots to disk as CSV, JSON and
// Parquet for downstream BI tools.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/saleslens/saleslens/internal/analytics"
	"github.com/saleslens/saleslens/internal/encoding"
)

// Format selects the on-disk representation.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// LeadScoreRow is the flattened per-lead export record.
type LeadScoreRow struct {
	LeadID   string  `json:"lead_id" parquet:"lead_id,snappy"`
	Company  string  `json:"company" parquet:"company,snappy"`
	Industry string  `json:"industry" parquet:"industry,snappy"`
	Score    float64 `json:"lead_score" parquet:"lead_score,snappy"`
	Priority string  `json:"priority" parquet:"priority,snappy"`
}

// ChurnRow is the flattened per-account export record.
type ChurnRow struct {
	AccountID   string  `json:"account_id" parquet:"account_id,snappy"`
	Name        string  `json:"name" parquet:"name,snappy"`
	Industry    string  `json:"industry" parquet:"industry,snappy"`
	Score       float64 `json:"churn_risk_score" parquet:"churn_risk_score,snappy"`
	Level       string  `json:"churn_risk_level" parquet:"churn_risk_level,snappy"`
	RiskFactors string  `json:"risk_factors" parquet:"risk_factors,snappy"`
}

// FunnelExportRow is the flattened per-stage export record.
type FunnelExportRow struct {
	Stage      string  `json:"stage" parquet:"stage,snappy"`
	Count      int64   `json:"count" parquet:"count,snappy"`
	TotalValue float64 `json:"total_value" parquet:"total_value,snappy"`
	AvgValue   float64 `json:"avg_value" parquet:"avg_value,snappy"`
}

// Snapshot is one full analysis result ready for export.
type Snapshot struct {
	GeneratedAt time.Time
	Leads       []analytics.ScoredLead
	Churn       []analytics.ChurnAccount
	Funnel      []analytics.FunnelRow
	Pipeline    analytics.PipelineReport
}

// Writer persists snapshots under a base directory, one timestamped
// subdirectory per run.
type Writer struct {
	baseDir string
}

// NewWriter creates a writer rooted at baseDir.
func NewWriter(baseDir string) *Writer {
	return &Writer{baseDir: baseDir}
}

// Write persists the snapshot in the given format and returns the paths
// of the files it wrote.
func (w *Writer) Write(snap Snapshot, format Format) ([]string, error) {
	dir := filepath.Join(w.baseDir, snap.GeneratedAt.UTC().Format("20060102T150405Z"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	leads := leadRows(snap.Leads)
	churn := churnRows(snap.Churn)
	funnel := funnelRows(snap.Funnel)

	var paths []string
	write := func(name string, fn func(path string) error) error {
		path := filepath.Join(dir, name)
		if err := fn(path); err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		paths = append(paths, path)
		return nil
	}

	ext := string(format)
	var err error
	switch format {
	case FormatCSV:
		err = firstErr(
			write("lead_scores."+ext, func(p string) error { return writeCSV(p, leads) }),
			write("churn_risk."+ext, func(p string) error { return writeCSV(p, churn) }),
			write("pipeline_funnel."+ext, func(p string) error { return writeCSV(p, funnel) }),
		)
	case FormatJSON:
		err = firstErr(
			write("lead_scores."+ext, func(p string) error { return writeJSON(p, leads) }),
			write("churn_risk."+ext, func(p string) error { return writeJSON(p, churn) }),
			write("pipeline_funnel."+ext, func(p string) error { return writeJSON(p, funnel) }),
			write("pipeline_report."+ext, func(p string) error { return writeJSON(p, snap.Pipeline) }),
		)
	case FormatParquet:
		err = firstErr(
			write("lead_scores."+ext, func(p string) error { return writeParquet(p, leads) }),
			write("churn_risk."+ext, func(p string) error { return writeParquet(p, churn) }),
			write("pipeline_funnel."+ext, func(p string) error { return writeParquet(p, funnel) }),
		)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return paths, nil
}

func leadRows(scored []analytics.ScoredLead) []LeadScoreRow {
	rows := make([]LeadScoreRow, 0, len(scored))
	for _, s := range scored {
		rows = append(rows, LeadScoreRow{
			LeadID:   s.Lead.Str("Id", ""),
			Company:  s.Lead.Str("Company", ""),
			Industry: s.Lead.Str("Industry", ""),
			Score:    s.Score,
			Priority: string(s.Priority),
		})
	}
	return rows
}

func churnRows(accounts []analytics.ChurnAccount) []ChurnRow {
	rows := make([]ChurnRow, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, ChurnRow{
			AccountID:   a.Account.Str("Id", ""),
			Name:        a.Account.Str("Name", ""),
			Industry:    a.Account.Str("Industry", ""),
			Score:       a.Score,
			Level:       string(a.Level),
			RiskFactors: strings.Join(a.RiskFactors, "; "),
		})
	}
	return rows
}

func funnelRows(funnel []analytics.FunnelRow) []FunnelExportRow {
	rows := make([]FunnelExportRow, 0, len(funnel))
	for _, f := range funnel {
		rows = append(rows, FunnelExportRow{
			Stage:      f.Stage,
			Count:      int64(f.Count),
			TotalValue: f.TotalValue,
			AvgValue:   f.AvgValue,
		})
	}
	return rows
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(encoding.Sanitize(data))
}

func writeParquet[T any](path string, rows []T) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	pw := parquet.NewGenericWriter[T](f)
	if _, err := pw.Write(rows); err != nil {
		pw.Close()
		return err
	}
	return pw.Close()
}

func writeCSV(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	switch rows := data.(type) {
	case []LeadScoreRow:
		if err := cw.Write([]string{"lead_id", "company", "industry", "lead_score", "priority"}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write([]string{r.LeadID, r.Company, r.Industry, formatFloat(r.Score), r.Priority}); err != nil {
				return err
			}
		}
	case []ChurnRow:
		if err := cw.Write([]string{"account_id", "name", "industry", "churn_risk_score", "churn_risk_level", "risk_factors"}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write([]string{r.AccountID, r.Name, r.Industry, formatFloat(r.Score), r.Level, r.RiskFactors}); err != nil {
				return err
			}
		}
	case []FunnelExportRow:
		if err := cw.Write([]string{"stage", "count", "total_value", "avg_value"}); err != nil {
			return err
		}
		for _, r := range rows {
			if err := cw.Write([]string{r.Stage, fmt.Sprintf("%d", r.Count), formatFloat(r.TotalValue), formatFloat(r.AvgValue)}); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported CSV row type %T", data)
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
