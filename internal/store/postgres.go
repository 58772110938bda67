package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/ema-gis/cecmap/internal/db"
	"github.com/ema-gis/cecmap/internal/permit"
	"github.com/ema-gis/cecmap/internal/screening"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	records     INTEGER NOT NULL,
	imported_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS permits (
	dataset_id         TEXT NOT NULL REFERENCES datasets(id),
	seq                BIGSERIAL,
	reference          TEXT NOT NULL,
	year               INTEGER,
	applicant          TEXT,
	activity           TEXT,
	location           TEXT,
	easting            DOUBLE PRECISION,
	northing           DOUBLE PRECISION,
	latitude           DOUBLE PRECISION,
	longitude          DOUBLE PRECISION,
	status             TEXT,
	determination_date TEXT
);

CREATE TABLE IF NOT EXISTS session_snapshots (
	id       TEXT PRIMARY KEY,
	snapshot JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_permits_dataset_id ON permits(dataset_id);
CREATE INDEX IF NOT EXISTS idx_datasets_imported_at ON datasets(imported_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var permitColumns = []string{
	"dataset_id", "reference", "year", "applicant", "activity", "location",
	"easting", "northing", "latitude", "longitude", "status", "determination_date",
}

func (s *PostgresStore) SaveDataset(ctx context.Context, name string, records []permit.Record) (string, error) {
	id := uuid.New().String()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO datasets (id, name, records, imported_at) VALUES ($1, $2, $3, $4)`,
		id, name, len(records), time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert dataset")
	}

	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			id, r.Reference, r.Year, r.Applicant, r.Activity, r.Location,
			r.Easting, r.Northing, r.Latitude, r.Longitude, r.Status, r.DeterminationDate,
		})
	}
	if _, err := db.CopyFrom(ctx, s.pool, "permits", permitColumns, rows); err != nil {
		return "", eris.Wrap(err, "postgres: copy permits")
	}
	return id, nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id string) ([]permit.Record, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT records FROM datasets WHERE id = $1`, id).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &ErrNotFound{Kind: "dataset", ID: id}
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get dataset")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT reference, year, applicant, activity, location,
			easting, northing, latitude, longitude, status, determination_date
		FROM permits WHERE dataset_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query permits")
	}
	defer rows.Close()

	records := make([]permit.Record, 0, count)
	for rows.Next() {
		var r permit.Record
		err = rows.Scan(&r.Reference, &r.Year, &r.Applicant, &r.Activity, &r.Location,
			&r.Easting, &r.Northing, &r.Latitude, &r.Longitude, &r.Status, &r.DeterminationDate)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan permit")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate permits")
}

func (s *PostgresStore) LatestDataset(ctx context.Context) (string, []permit.Record, error) {
	var id string
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM datasets ORDER BY imported_at DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil, &ErrNotFound{Kind: "dataset", ID: "latest"}
	}
	if err != nil {
		return "", nil, eris.Wrap(err, "postgres: latest dataset")
	}

	records, err := s.GetDataset(ctx, id)
	return id, records, err
}

func (s *PostgresStore) ListDatasets(ctx context.Context) ([]DatasetInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, records, imported_at FROM datasets ORDER BY imported_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list datasets")
	}
	defer rows.Close()

	var infos []DatasetInfo
	for rows.Next() {
		var info DatasetInfo
		if err := rows.Scan(&info.ID, &info.Name, &info.Records, &info.ImportedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "postgres: iterate datasets")
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap screening.Snapshot) (string, error) {
	id := uuid.New().String()
	data, err := json.Marshal(snap)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal snapshot")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO session_snapshots (id, snapshot, saved_at) VALUES ($1, $2, $3)`,
		id, data, time.Now().UTC())
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert snapshot")
	}
	return id, nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id string) (screening.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM session_snapshots WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return screening.Snapshot{}, &ErrNotFound{Kind: "snapshot", ID: id}
	}
	if err != nil {
		return screening.Snapshot{}, eris.Wrap(err, "postgres: get snapshot")
	}

	var snap screening.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return screening.Snapshot{}, eris.Wrap(err, "postgres: unmarshal snapshot")
	}
	return snap, nil
}

func (s *PostgresStore) ListSnapshots(ctx context.Context) ([]SnapshotInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, saved_at FROM session_snapshots ORDER BY saved_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list snapshots")
	}
	defer rows.Close()

	var infos []SnapshotInfo
	for rows.Next() {
		var info SnapshotInfo
		if err := rows.Scan(&info.ID, &info.SavedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan snapshot")
		}
		infos = append(infos, info)
	}
	return infos, eris.Wrap(rows.Err(), "postgres: iterate snapshots")
}
