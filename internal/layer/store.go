package layer

import (
	"context"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ema-gis/cecmap/internal/resilience"
)

const preloadConcurrency = 4

// Store caches loaded layers by name. At most one copy of a layer is held in
// memory; concurrent loads of the same name collapse into a single fetch.
type Store struct {
	client  *http.Client
	limiter *rate.Limiter

	mu       sync.Mutex
	defs     []Definition
	byName   map[string]Definition
	cats     []Category
	loaded   map[string]*Layer
	inflight map[string]chan struct{}
}

// NewStore builds a store from the embedded manifest.
func NewStore(client *http.Client) (*Store, error) {
	m, err := loadManifest()
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	byName := make(map[string]Definition, len(m.Layers))
	for _, d := range m.Layers {
		byName[d.Name] = d
	}

	return &Store{
		client:   client,
		limiter:  rate.NewLimiter(5, 5),
		defs:     m.Layers,
		byName:   byName,
		cats:     m.Categories,
		loaded:   make(map[string]*Layer),
		inflight: make(map[string]chan struct{}),
	}, nil
}

// Definitions returns the registry in manifest order.
func (s *Store) Definitions() []Definition {
	out := make([]Definition, len(s.defs))
	copy(out, s.defs)
	return out
}

// Categories returns the declared zone-category mapping.
func (s *Store) Categories() []Category {
	out := make([]Category, len(s.cats))
	copy(out, s.cats)
	return out
}

// Receptors returns the names of receptor layers in manifest order.
func (s *Store) Receptors() []string {
	var out []string
	for _, d := range s.defs {
		if d.Receptor {
			out = append(out, d.Name)
		}
	}
	return out
}

// AnalysisRequired returns the names of layers the spatial engine depends on.
func (s *Store) AnalysisRequired() []string {
	var out []string
	for _, d := range s.defs {
		if d.Analysis {
			out = append(out, d.Name)
		}
	}
	return out
}

// Get returns a layer if it is already in memory.
func (s *Store) Get(name string) (*Layer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.loaded[name]
	return l, ok
}

// Load returns the named layer, fetching and caching it on first use.
// Concurrent callers for the same name share one fetch.
func (s *Store) Load(ctx context.Context, name string) (*Layer, error) {
	for {
		s.mu.Lock()
		if l, ok := s.loaded[name]; ok {
			s.mu.Unlock()
			return l, nil
		}
		def, ok := s.byName[name]
		if !ok {
			s.mu.Unlock()
			return nil, eris.Errorf("layer: unknown layer %q", name)
		}
		if ch, busy := s.inflight[name]; busy {
			s.mu.Unlock()
			select {
			case <-ch:
			case <-ctx.Done():
				return nil, eris.Wrap(ctx.Err(), "layer: wait for in-flight load")
			}
			continue
		}
		ch := make(chan struct{})
		s.inflight[name] = ch
		s.mu.Unlock()

		l, err := s.fetch(ctx, def)

		s.mu.Lock()
		delete(s.inflight, name)
		close(ch)
		if err == nil {
			s.loaded[name] = l
		}
		s.mu.Unlock()
		return l, err
	}
}

// Put installs a layer document directly, overwriting any cached copy. Used
// by the shapefile importer and by tests.
func (s *Store) Put(def Definition, fc *geojson.FeatureCollection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, known := s.byName[def.Name]; !known {
		s.byName[def.Name] = def
		s.defs = append(s.defs, def)
	}
	s.loaded[def.Name] = &Layer{Definition: def, Collection: fc}
}

// Unload drops a layer from memory. The registry entry stays; a later Load
// fetches it again.
func (s *Store) Unload(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.loaded, name)
}

// Preload fetches every analysis-required layer concurrently. A failed layer
// is logged and left absent; it never fails the preload, because the spatial
// engine tolerates missing layers.
func (s *Store) Preload(ctx context.Context) {
	log := zap.L().With(zap.String("component", "layer.store"))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadConcurrency)
	for _, name := range s.AnalysisRequired() {
		g.Go(func() error {
			if _, err := s.Load(gctx, name); err != nil {
				log.Warn("layer preload failed, analysis will skip it",
					zap.String("layer", name), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.mu.Lock()
	n := len(s.loaded)
	s.mu.Unlock()
	log.Info("layer preload complete", zap.Int("loaded", n))
}

func (s *Store) fetch(ctx context.Context, def Definition) (*Layer, error) {
	var (
		body []byte
		err  error
	)
	switch {
	case def.Path != "":
		body, err = os.ReadFile(def.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "layer: read %q", def.Name)
		}
	default:
		body, err = s.fetchURL(ctx, def.URL)
		if err != nil {
			return nil, eris.Wrapf(err, "layer: fetch %q", def.Name)
		}
	}

	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, eris.Wrapf(err, "layer: parse %q", def.Name)
	}

	zap.L().Debug("layer loaded",
		zap.String("layer", def.Name),
		zap.Int("features", len(fc.Features)),
	)
	return &Layer{Definition: def, Collection: fc}, nil
}

func (s *Store) fetchURL(ctx context.Context, url string) ([]byte, error) {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger("layers", url)
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) ([]byte, error) {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limit wait")
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "build request")
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, eris.Wrap(err, "do request")
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err = eris.Errorf("unexpected status %d", resp.StatusCode)
			if resilience.IsTransientHTTPStatus(resp.StatusCode) {
				return nil, resilience.NewTransientError(err, resp.StatusCode)
			}
			return nil, err
		}
		return io.ReadAll(resp.Body)
	})
}
