// Package store persists imported permit datasets and screening-session
// snapshots. It is an archive behind the in-memory working set, not a
// spatial database; geometry queries never touch it.
package store

import (
	"context"
	"time"

	"github.com/ema-gis/cecmap/internal/permit"
	"github.com/ema-gis/cecmap/internal/screening"
)

// DatasetInfo summarizes one stored permit dataset.
type DatasetInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Records    int       `json:"records"`
	ImportedAt time.Time `json:"imported_at"`
}

// SnapshotInfo summarizes one stored screening session.
type SnapshotInfo struct {
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
}

// Store is the persistence interface. SQLite serves single-officer desktop
// use; Postgres serves the shared server deployment.
type Store interface {
	// Permit datasets
	SaveDataset(ctx context.Context, name string, records []permit.Record) (string, error)
	GetDataset(ctx context.Context, id string) ([]permit.Record, error)
	LatestDataset(ctx context.Context) (string, []permit.Record, error)
	ListDatasets(ctx context.Context) ([]DatasetInfo, error)

	// Session snapshots
	SaveSnapshot(ctx context.Context, snap screening.Snapshot) (string, error)
	GetSnapshot(ctx context.Context, id string) (screening.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]SnapshotInfo, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned for unknown dataset or snapshot ids.
type ErrNotFound struct {
	Kind string
	ID   string
}

func (e *ErrNotFound) Error() string {
	return "store: " + e.Kind + " " + e.ID + " not found"
}
