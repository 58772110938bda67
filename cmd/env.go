package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/catalog"
	"github.com/ema-gis/cecmap/internal/layer"
	"github.com/ema-gis/cecmap/internal/permit"
	"github.com/ema-gis/cecmap/internal/screening"
	"github.com/ema-gis/cecmap/internal/spatial"
	"github.com/ema-gis/cecmap/internal/store"
)

// appEnv holds the initialized store, layer cache, activity catalog, the
// single screening session, and the spatial engine shared by the commands.
type appEnv struct {
	Store   store.Store
	Layers  *layer.Store
	Catalog *catalog.Catalog
	Session *screening.Session
	Engine  *spatial.Engine

	// Working permit dataset, swapped whole on import.
	mu      sync.RWMutex
	permits []permit.Record

	datasetURL       string
	persistSnapshots bool
}

// Close releases resources held by the environment.
func (env *appEnv) Close() {
	if env.Store != nil {
		_ = env.Store.Close()
	}
}

// Permits returns the working dataset.
func (env *appEnv) Permits() []permit.Record {
	env.mu.RLock()
	defer env.mu.RUnlock()
	return env.permits
}

// SetPermits replaces the working dataset.
func (env *appEnv) SetPermits(records []permit.Record) {
	env.mu.Lock()
	env.permits = records
	env.mu.Unlock()
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "cecmap.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, the layer cache, the activity catalog, the
// screening session, and the spatial engine. The latest stored permit
// dataset becomes the working set; an empty store is not an error. Callers
// should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	layers, err := layer.NewStore(&http.Client{
		Timeout: time.Duration(cfg.Layers.TimeoutSecs) * time.Second,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	cat, err := catalog.New()
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	env := &appEnv{
		Store:            st,
		Layers:           layers,
		Catalog:          cat,
		Session:          screening.NewSession(),
		Engine:           spatial.New(layers, cfg.Analysis.BufferMetres),
		datasetURL:       cfg.Permits.DatasetURL,
		persistSnapshots: cfg.Screening.PersistSnapshots,
	}

	id, records, err := st.LatestDataset(ctx)
	switch {
	case err == nil:
		env.permits = records
		zap.L().Info("permit dataset loaded from store",
			zap.String("dataset", id),
			zap.Int("records", len(records)),
		)
	case isNotFound(err):
		zap.L().Info("no permit dataset in store, run `cecmap permits import`")
	default:
		_ = st.Close()
		return nil, eris.Wrap(err, "load latest dataset")
	}

	return env, nil
}

func isNotFound(err error) bool {
	var nf *store.ErrNotFound
	return errors.As(err, &nf)
}
