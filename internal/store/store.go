// Package store persists voting round reports. Two backends are supported:
// SQLite for single-host deployments and Postgres for shared ones.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quorumworks/govpilot/internal/model"
)

// ReportFilter specifies criteria for listing reports.
type ReportFilter struct {
	Policy string    `json:"policy,omitempty"`
	Since  time.Time `json:"since,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for round reports.
type Store interface {
	SaveReport(ctx context.Context, report *model.RunReport) error
	GetReport(ctx context.Context, id string) (*model.RunReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]model.RunReport, error)
	PruneReports(ctx context.Context, olderThan time.Time) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open creates a store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}
