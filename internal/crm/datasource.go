// Package crm provides access to CRM data, either from a live Salesforce
// org or from a seeded in-memory mock.
package crm

import (
	"context"
	"log/slog"

	"github.com/saleslens/saleslens/internal/config"
	"github.com/saleslens/saleslens/internal/types"
)

// DataSource is the read/write surface the analytics and writeback layers
// consume. A limit of zero means no limit.
type DataSource interface {
	Leads(ctx context.Context, limit int) ([]types.Record, error)
	Opportunities(ctx context.Context, limit int) ([]types.Record, error)
	Accounts(ctx context.Context, limit int) ([]types.Record, error)
	Cases(ctx context.Context, limit int) ([]types.Record, error)
	Activities(ctx context.Context, limit int) ([]types.Record, error)

	// UpdateRecord patches fields on an existing record of the named
	// object type ("Lead", "Account", ...).
	UpdateRecord(ctx context.Context, object, id string, fields types.Record) error

	// CreateRecord inserts a record and returns its new ID.
	CreateRecord(ctx context.Context, object string, fields types.Record) (string, error)

	Close() error
}

// New returns the configured data source. A live connection that cannot
// be established falls back to mock data so the service stays usable.
func New(ctx context.Context, cfg config.Salesforce) DataSource {
	if cfg.UseMock {
		slog.Info("Using mock CRM data")
		return NewMockClient(DefaultMockSeed)
	}

	client, err := NewRESTClient(ctx, cfg)
	if err != nil {
		slog.Error("Failed to connect to Salesforce, falling back to mock data", "error", err)
		return NewMockClient(DefaultMockSeed)
	}
	slog.Info("Connected to Salesforce", "instance", cfg.InstanceURL)
	return client
}
