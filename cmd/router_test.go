package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ema-gis/cecmap/internal/catalog"
	"github.com/ema-gis/cecmap/internal/layer"
	"github.com/ema-gis/cecmap/internal/permit"
	"github.com/ema-gis/cecmap/internal/screening"
	"github.com/ema-gis/cecmap/internal/spatial"
	"github.com/ema-gis/cecmap/internal/store"
)

func newTestEnv(t *testing.T) *appEnv {
	t.Helper()

	cat, err := catalog.New()
	require.NoError(t, err)

	layers, err := layer.NewStore(nil)
	require.NoError(t, err)

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "cecmap.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(t.Context()))
	t.Cleanup(func() { st.Close() })

	return &appEnv{
		Store:            st,
		Layers:           layers,
		Catalog:          cat,
		Session:          screening.NewSession(),
		Engine:           spatial.New(layers, spatial.DefaultRadiusMetres),
		persistSnapshots: true,
	}
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestRouterHealth(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, h, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	decode(t, rr, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestRouterActivities(t *testing.T) {
	h := buildRouter(newTestEnv(t), []string{"*"})

	rr := doJSON(t, h, http.MethodGet, "/api/activities", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Activities []catalog.Activity `json:"activities"`
	}
	decode(t, rr, &body)
	assert.Len(t, body.Activities, 69)

	rr = doJSON(t, h, http.MethodGet, "/api/activities/1(a)/guidance", nil)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/api/activities/99(z)/guidance", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func testPermits() []permit.Record {
	lat1, lon1 := 10.51, -61.41
	lat2, lon2 := 10.65, -61.50
	return []permit.Record{
		{Reference: "CEC0450/2019", Year: 2019, Applicant: "Acme Quarries Ltd", Activity: "Mining and quarrying", Status: "CEC Granted", Latitude: &lat1, Longitude: &lon1},
		{Reference: "CEC1201/2023", Year: 2023, Applicant: "Delta Farms", Activity: "Agriculture", Status: "Application Withdrawn", Latitude: &lat2, Longitude: &lon2},
		{Reference: "CEC0777/2021", Year: 2021, Applicant: "No Position Co", Activity: "Construction"},
	}
}

func TestRouterPermits(t *testing.T) {
	env := newTestEnv(t)
	env.SetPermits(testPermits())
	h := buildRouter(env, []string{"*"})

	t.Run("list all", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/api/permits", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Count   int             `json:"count"`
			Permits []permit.Record `json:"permits"`
		}
		decode(t, rr, &body)
		assert.Equal(t, 3, body.Count)
	})

	t.Run("no matches is an empty array", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/api/permits?q=zzz", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"permits":[]`)
	})

	t.Run("year filter", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/api/permits?year_start=2021&year_end=2023", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Count   int             `json:"count"`
			Permits []permit.Record `json:"permits"`
		}
		decode(t, rr, &body)
		require.Equal(t, 2, body.Count)
		assert.Equal(t, "CEC1201/2023", body.Permits[0].Reference)
	})

	t.Run("status and query filters", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/api/permits?status=CEC+Granted", nil)
		var body struct {
			Count int `json:"count"`
		}
		decode(t, rr, &body)
		assert.Equal(t, 1, body.Count)

		rr = doJSON(t, h, http.MethodGet, "/api/permits?q=farms", nil)
		decode(t, rr, &body)
		assert.Equal(t, 1, body.Count)
	})

	t.Run("lookup by reference number", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/api/permits/450", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		var rec permit.Record
		decode(t, rr, &rec)
		assert.Equal(t, "CEC0450/2019", rec.Reference)
	})

	t.Run("unknown reference", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodGet, "/api/permits/9999", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestRouterSessionWorkflow(t *testing.T) {
	env := newTestEnv(t)
	h := buildRouter(env, []string{"*"})

	// Ratings before any selection: the assessment gate stays closed.
	rr := doJSON(t, h, http.MethodPost, "/api/session/ratings", map[string]any{
		"ratings": map[string]any{},
	})
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	// Output before the assessment gate.
	rr = doJSON(t, h, http.MethodGet, "/api/session/output", nil)
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/session/project", map[string]string{
		"title":      "Quarry Expansion",
		"cec_number": "CEC2100/2026",
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/session/selection", map[string]string{"code": "1(a)"})
	require.Equal(t, http.StatusOK, rr.Code)
	var sel struct {
		Selected  bool     `json:"selected"`
		Selection []string `json:"selection"`
	}
	decode(t, rr, &sel)
	assert.True(t, sel.Selected)
	assert.Equal(t, []string{"1(a)"}, sel.Selection)

	rr = doJSON(t, h, http.MethodPost, "/api/session/selection", map[string]string{"code": "not-a-code"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/session/ratings", map[string]any{
		"ratings": map[string]any{
			"1(a)": map[string]string{"nature": "High", "scale": "High", "location": "Very High"},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/api/session/output", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var out screening.Output
	decode(t, rr, &out)
	assert.Equal(t, "Quarry Expansion", out.ProjectTitle)
	assert.Equal(t, screening.DecisionRequired, out.Score.Decision)
	assert.InDelta(t, 0.9, out.Score.Composite, 1e-9)

	rr = doJSON(t, h, http.MethodGet, "/api/session/output/export", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, xlsxContentType, rr.Header().Get("Content-Type"))
	assert.NotEmpty(t, rr.Body.Bytes())

	rr = doJSON(t, h, http.MethodPost, "/api/session/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap screening.Snapshot
	decode(t, rr, &snap)
	assert.Empty(t, snap.Selected)
	assert.False(t, snap.AssessmentStarted)
}

func TestRouterSnapshots(t *testing.T) {
	env := newTestEnv(t)
	h := buildRouter(env, []string{"*"})

	rr := doJSON(t, h, http.MethodPost, "/api/session/selection", map[string]string{"code": "2"})
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/session/snapshots", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var saved map[string]string
	decode(t, rr, &saved)
	require.NotEmpty(t, saved["id"])

	rr = doJSON(t, h, http.MethodPost, "/api/session/reset", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/api/session/snapshots/"+saved["id"]+"/restore", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var snap screening.Snapshot
	decode(t, rr, &snap)
	assert.Equal(t, []string{"2"}, snap.Selected)

	rr = doJSON(t, h, http.MethodPost, "/api/session/snapshots/no-such-id/restore", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/api/session/snapshots", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list struct {
		Snapshots []store.SnapshotInfo `json:"snapshots"`
	}
	decode(t, rr, &list)
	assert.Len(t, list.Snapshots, 1)
}

func TestRouterLayers(t *testing.T) {
	env := newTestEnv(t)
	h := buildRouter(env, []string{"*"})

	rr := doJSON(t, h, http.MethodGet, "/api/layers", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Layers []struct {
			Name     string `json:"name"`
			Analysis bool   `json:"analysis"`
			Loaded   bool   `json:"loaded"`
		} `json:"layers"`
		Categories []layer.Category `json:"categories"`
	}
	decode(t, rr, &body)
	assert.Len(t, body.Layers, 19)
	assert.Len(t, body.Categories, 7)
	for _, l := range body.Layers {
		assert.False(t, l.Loaded, l.Name)
	}
}

// seedLayer installs a feature collection for a registered layer without
// touching the network.
func seedLayer(t *testing.T, env *appEnv, name string, fc *geojson.FeatureCollection) {
	t.Helper()
	for _, d := range env.Layers.Definitions() {
		if d.Name == name {
			env.Layers.Put(d, fc)
			return
		}
	}
	t.Fatalf("layer %q not in manifest", name)
}

func TestRouterAnalysis(t *testing.T) {
	env := newTestEnv(t)
	env.SetPermits(testPermits())

	// A municipality polygon around the test site.
	poly := geojson.NewFeature(orb.Polygon{{
		{-61.45, 10.45}, {-61.35, 10.45}, {-61.35, 10.55}, {-61.45, 10.55}, {-61.45, 10.45},
	}})
	poly.Properties["NAME_1"] = "Sangre Grande"
	fc := geojson.NewFeatureCollection()
	fc.Append(poly)
	seedLayer(t, env, "Municipality", fc)

	h := buildRouter(env, []string{"*"})

	rr := doJSON(t, h, http.MethodPost, "/api/analysis", map[string]any{
		"geometry": map[string]any{
			"type":        "Point",
			"coordinates": []float64{-61.41, 10.51},
		},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		RadiusM float64              `json:"radius_m"`
		Permits []spatial.PermitHit  `json:"permits"`
		Zones   []spatial.ZoneResult `json:"zones"`
		Missing []string             `json:"missing_layers"`
	}
	decode(t, rr, &body)

	assert.Equal(t, spatial.DefaultRadiusMetres, body.RadiusM)

	// The quarry permit sits at the site; the others are out of range.
	require.Len(t, body.Permits, 1)
	assert.Equal(t, "CEC0450/2019", body.Permits[0].Record.Reference)

	var muni *spatial.ZoneResult
	for i := range body.Zones {
		if body.Zones[i].Category == "Municipality" {
			muni = &body.Zones[i]
		}
	}
	require.NotNil(t, muni)
	assert.Equal(t, []string{"Sangre Grande"}, muni.Labels)

	// Everything except the seeded municipality layer is still unloaded.
	assert.Len(t, body.Missing, 13)

	t.Run("invalid geometry", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/api/analysis", map[string]any{
			"geometry": map[string]any{"type": "Nonagon"},
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing geometry", func(t *testing.T) {
		rr := doJSON(t, h, http.MethodPost, "/api/analysis", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
