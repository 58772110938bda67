package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/ema-gis/cecmap/internal/permit"
	"github.com/ema-gis/cecmap/internal/screening"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	records     INTEGER NOT NULL,
	imported_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS permits (
	dataset_id         TEXT NOT NULL REFERENCES datasets(id),
	reference          TEXT NOT NULL,
	year               INTEGER,
	applicant          TEXT,
	activity           TEXT,
	location           TEXT,
	easting            REAL,
	northing           REAL,
	latitude           REAL,
	longitude          REAL,
	status             TEXT,
	determination_date TEXT
);

CREATE TABLE IF NOT EXISTS session_snapshots (
	id       TEXT PRIMARY KEY,
	snapshot TEXT NOT NULL,
	saved_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_permits_dataset_id ON permits(dataset_id);
CREATE INDEX IF NOT EXISTS idx_datasets_imported_at ON datasets(imported_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveDataset(ctx context.Context, name string, records []permit.Record) (string, error) {
	id := uuid.New().String()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: begin dataset tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO datasets (id, name, records, imported_at) VALUES (?, ?, ?, ?)`,
		id, name, len(records), time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert dataset")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO permits (dataset_id, reference, year, applicant, activity, location,
			easting, northing, latitude, longitude, status, determination_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: prepare permit insert")
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range records {
		_, err = stmt.ExecContext(ctx,
			id, r.Reference, r.Year, r.Applicant, r.Activity, r.Location,
			r.Easting, r.Northing, r.Latitude, r.Longitude, r.Status, r.DeterminationDate)
		if err != nil {
			return "", eris.Wrapf(err, "sqlite: insert permit %s", r.Reference)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", eris.Wrap(err, "sqlite: commit dataset")
	}
	return id, nil
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) ([]permit.Record, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT records FROM datasets WHERE id = ?`, id).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Kind: "dataset", ID: id}
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get dataset")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT reference, year, applicant, activity, location,
			easting, northing, latitude, longitude, status, determination_date
		FROM permits WHERE dataset_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query permits")
	}
	defer rows.Close() //nolint:errcheck

	records := make([]permit.Record, 0, count)
	for rows.Next() {
		var r permit.Record
		err = rows.Scan(&r.Reference, &r.Year, &r.Applicant, &r.Activity, &r.Location,
			&r.Easting, &r.Northing, &r.Latitude, &r.Longitude, &r.Status, &r.DeterminationDate)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan permit")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate permits")
}

func (s *SQLiteStore) LatestDataset(ctx context.Context) (string, []permit.Record, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM datasets ORDER BY imported_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, &ErrNotFound{Kind: "dataset", ID: "latest"}
	}
	if err != nil {
		return "", nil, eris.Wrap(err, "sqlite: latest dataset")
	}

	records, err := s.GetDataset(ctx, id)
	return id, records, err
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, records, imported_at FROM datasets ORDER BY imported_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list datasets")
	}
	defer rows.Close() //nolint:errcheck

	var infos []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Records, &info.ImportedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dataset")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "sqlite: iterate datasets")
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap screening.Snapshot) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(snap)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal snapshot")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_snapshots (id, snapshot, saved_at) VALUES (?, ?, ?)`,
		id, string(data), time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert snapshot")
	}
	return id, nil
}

func (s *SQLiteStore) GetSnapshot(ctx context.Context, id string) (screening.Snapshot, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT snapshot FROM session_snapshots WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return screening.Snapshot{}, &ErrNotFound{Kind: "snapshot", ID: id}
	}
	if err != nil {
		return screening.Snapshot{}, eris.Wrap(err, "sqlite: get snapshot")
	}

	var snap screening.Snapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return screening.Snapshot{}, eris.Wrap(err, "sqlite: unmarshal snapshot")
	}
	return snap, nil
}

func (s *SQLiteStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, saved_at FROM session_snapshots ORDER BY saved_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list snapshots")
	}
	defer rows.Close() //nolint:errcheck

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.SavedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan snapshot")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "sqlite: iterate snapshots")
}
