package main

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/permit"
	"github.com/ema-gis/cecmap/internal/screening"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// buildRouter assembles the API surface. The environment carries all state;
// nothing here touches package-level config, so tests can drive the router
// directly.
func buildRouter(env *appEnv, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/permits", env.handleListPermits)
		r.Post("/permits/import", env.handleImportPermits)
		r.Get("/permits/{ref}", env.handleGetPermit)

		r.Get("/layers", env.handleListLayers)
		r.Post("/layers/preload", env.handlePreloadLayers)
		r.Get("/layers/{name}", env.handleGetLayer)

		r.Get("/activities", env.handleListActivities)
		r.Get("/activities/{code}/guidance", env.handleGetGuidance)

		r.Get("/session", env.handleGetSession)
		r.Post("/session/project", env.handleSetProject)
		r.Post("/session/selection", env.handleToggleSelection)
		r.Post("/session/ratings", env.handleSetRatings)
		r.Post("/session/reset", env.handleResetSession)
		r.Get("/session/output", env.handleGetOutput)
		r.Get("/session/output/export", env.handleExportOutput)
		r.Get("/session/snapshots", env.handleListSnapshots)
		r.Post("/session/snapshots", env.handleSaveSnapshot)
		r.Post("/session/snapshots/{id}/restore", env.handleRestoreSnapshot)

		r.Post("/analysis", env.handleAnalysis)
	})

	return r
}

func (env *appEnv) handleListPermits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := permit.Filter{
		YearStart: atoiOrZero(q.Get("year_start")),
		YearEnd:   atoiOrZero(q.Get("year_end")),
		Status:    q.Get("status"),
		Query:     q.Get("q"),
	}

	matched := f.Apply(env.Permits())
	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(matched),
		"permits": matched,
	})
}

func (env *appEnv) handleImportPermits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL  string `json:"url"`
		Name string `json:"name"`
	}
	if r.Body != nil {
		// An empty body means "import from the configured endpoint".
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.URL == "" {
		req.URL = env.datasetURL
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "no dataset url configured or supplied")
		return
	}
	if req.Name == "" {
		req.Name = "upstream"
	}

	records, err := permit.LoadFromURL(r.Context(), nil, req.URL)
	if err != nil {
		zap.L().Error("permit import failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusBadGateway, "dataset fetch failed")
		return
	}

	id := ""
	if env.Store != nil {
		id, err = env.Store.SaveDataset(r.Context(), req.Name, records)
		if err != nil {
			zap.L().Error("dataset save failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "dataset save failed")
			return
		}
	}
	env.SetPermits(records)

	writeJSON(w, http.StatusOK, map[string]any{
		"dataset_id": id,
		"records":    len(records),
	})
}

func (env *appEnv) handleGetPermit(w http.ResponseWriter, r *http.Request) {
	ref := pathParam(r, "ref")
	rec, ok := permit.FindByReference(env.Permits(), ref)
	if !ok {
		writeError(w, http.StatusNotFound, "permit not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (env *appEnv) handleListLayers(w http.ResponseWriter, _ *http.Request) {
	defs := env.Layers.Definitions()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		_, loaded := env.Layers.Get(d.Name)
		out = append(out, map[string]any{
			"name":     d.Name,
			"receptor": d.Receptor,
			"analysis": d.Analysis,
			"loaded":   loaded,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"layers":     out,
		"categories": env.Layers.Categories(),
	})
}

func (env *appEnv) handlePreloadLayers(w http.ResponseWriter, r *http.Request) {
	env.Layers.Preload(r.Context())
	loaded := 0
	for _, d := range env.Layers.Definitions() {
		if _, ok := env.Layers.Get(d.Name); ok {
			loaded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"loaded": loaded})
}

func (env *appEnv) handleGetLayer(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	l, err := env.Layers.Load(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusNotFound, "layer unavailable: "+name)
		return
	}
	writeJSON(w, http.StatusOK, l.Collection)
}

func (env *appEnv) handleListActivities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"activities": env.Catalog.All()})
}

func (env *appEnv) handleGetGuidance(w http.ResponseWriter, r *http.Request) {
	code := pathParam(r, "code")
	g, ok := env.Catalog.GuidanceFor(code)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown activity code")
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (env *appEnv) handleGetSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, env.Session.Snapshot())
}

func (env *appEnv) handleSetProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title     string `json:"title"`
		CECNumber string `json:"cec_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	env.Session.SetProject(req.Title, req.CECNumber)
	writeJSON(w, http.StatusOK, env.Session.Snapshot())
}

func (env *appEnv) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "activity code is required")
		return
	}

	selected, err := env.Session.Toggle(req.Code, env.Catalog)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"code":      req.Code,
		"selected":  selected,
		"selection": env.Session.Selected(),
	})
}

func (env *appEnv) handleSetRatings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ratings map[string]screening.RiskRating `json:"ratings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !env.Session.AssessmentStarted() {
		if err := env.Session.BeginAssessment(); err != nil {
			writeError(w, http.StatusPreconditionFailed, err.Error())
			return
		}
	}
	if err := env.Session.SetRatings(req.Ratings); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, env.Session.Snapshot())
}

func (env *appEnv) handleResetSession(w http.ResponseWriter, _ *http.Request) {
	env.Session.Reset()
	writeJSON(w, http.StatusOK, env.Session.Snapshot())
}

func (env *appEnv) generateOutput(w http.ResponseWriter, r *http.Request) (*screening.Output, bool) {
	out, err := env.Session.GenerateOutput(env.Catalog, time.Now())
	if err != nil {
		writeError(w, http.StatusPreconditionFailed, err.Error())
		return nil, false
	}

	if env.persistSnapshots && env.Store != nil {
		if id, err := env.Store.SaveSnapshot(r.Context(), env.Session.Snapshot()); err != nil {
			zap.L().Warn("session snapshot save failed", zap.Error(err))
		} else {
			zap.L().Debug("session snapshot saved", zap.String("snapshot", id))
		}
	}
	return out, true
}

func (env *appEnv) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	out, ok := env.generateOutput(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (env *appEnv) handleExportOutput(w http.ResponseWriter, r *http.Request) {
	out, ok := env.generateOutput(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="model-output.xlsx"`)
	if err := out.WriteXLSX(w); err != nil {
		zap.L().Error("xlsx export failed", zap.Error(err))
	}
}

func (env *appEnv) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	if env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	snaps, err := env.Store.ListSnapshots(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snaps})
}

func (env *appEnv) handleSaveSnapshot(w http.ResponseWriter, r *http.Request) {
	if env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	id, err := env.Store.SaveSnapshot(r.Context(), env.Session.Snapshot())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "snapshot save failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (env *appEnv) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	if env.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	id := pathParam(r, "id")
	snap, err := env.Store.GetSnapshot(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "snapshot load failed")
		return
	}
	env.Session.Restore(snap)
	writeJSON(w, http.StatusOK, env.Session.Snapshot())
}

func (env *appEnv) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Geometry json.RawMessage `json:"geometry"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Geometry) == 0 {
		writeError(w, http.StatusBadRequest, "geometry is required")
		return
	}

	gj, err := geojson.UnmarshalGeometry(req.Geometry)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid geometry: "+err.Error())
		return
	}
	g := gj.Geometry()
	env.Session.SetGeometry(g)

	missing := []string{}
	for _, name := range env.Layers.AnalysisRequired() {
		if _, ok := env.Layers.Get(name); !ok {
			missing = append(missing, name)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"radius_m":       env.Engine.Radius(),
		"permits":        env.Engine.NearbyPermits(g, env.Permits()),
		"receptors":      env.Engine.Receptors(g),
		"zones":          env.Engine.ZoneIntersections(g),
		"missing_layers": missing,
	})
}

func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
