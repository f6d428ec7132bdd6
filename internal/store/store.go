// Package store persists run history and cached SoilWeb lookups in a local
// SQLite database.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/grid"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = eris.New("store: not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // finished with failed cells
	RunStatusFailed   RunStatus = "failed"
)

// RunSpec describes the request that started a run.
type RunSpec struct {
	Name       string    `json:"name,omitempty"`
	AOI        grid.BBox `json:"aoi"`
	Resolution float64   `json:"resolution"`
	Workers    int       `json:"workers"`
}

// Run is a recorded enrichment run.
type Run struct {
	ID string `json:"id"`
	RunSpec
	Status    RunStatus `json:"status"`
	Cells     int       `json:"cells"`
	Populated int       `json:"populated"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store defines the persistence interface for runs and the lookup cache.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, spec RunSpec) (*Run, error)
	CompleteRun(ctx context.Context, runID string, report *enrich.Report) error
	FailRun(ctx context.Context, runID string, cause error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Cells
	SaveCells(ctx context.Context, runID string, cells []grid.Cell) error
	GetCells(ctx context.Context, runID string) ([]grid.Cell, error)

	// Lookup cache
	LookupCache

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// LookupCache stores raw lookup responses keyed by cell extent.
type LookupCache interface {
	GetCachedLookup(ctx context.Context, key string) (string, bool, error)
	SetCachedLookup(ctx context.Context, key, raw string, ttl time.Duration) error
	DeleteExpiredLookups(ctx context.Context) (int, error)
}

// StatusFor derives the final run status from a pool report.
func StatusFor(report *enrich.Report) RunStatus {
	switch {
	case report == nil:
		return RunStatusFailed
	case report.Failed() == 0:
		return RunStatusComplete
	case report.Populated == 0:
		return RunStatusFailed
	default:
		return RunStatusPartial
	}
}
