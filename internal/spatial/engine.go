// Package spatial answers the three site-analysis questions around an input
// geometry: which permits are nearby, which sensitive receptors are nearby
// or overlapping, and which administrative/susceptibility zones the geometry
// intersects.
package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/layer"
	"github.com/ema-gis/cecmap/internal/permit"
)

// DefaultRadiusMetres is the proximity buffer used for nearby-permit and
// receptor queries.
const DefaultRadiusMetres = 1000.0

// Engine runs proximity and intersection queries against the layer store.
// Queries tolerate absent layers: whatever is not loaded is skipped.
type Engine struct {
	store  *layer.Store
	radius float64
}

// New builds an engine. A non-positive radius falls back to the default.
func New(store *layer.Store, radiusMetres float64) *Engine {
	if radiusMetres <= 0 {
		radiusMetres = DefaultRadiusMetres
	}
	return &Engine{store: store, radius: radiusMetres}
}

// Radius returns the buffer distance in metres.
func (e *Engine) Radius() float64 { return e.radius }

// PermitHit is a permit record within the buffer, with its distance in
// metres from the input geometry (zero when inside a polygon input).
type PermitHit struct {
	Record   permit.Record `json:"record"`
	Distance float64       `json:"distance_m"`
}

// NearbyPermits returns the records whose derived position lies within the
// buffer of the input geometry. Records without a position are skipped.
func (e *Engine) NearbyPermits(g orb.Geometry, records []permit.Record) []PermitHit {
	hits := []PermitHit{}
	for _, r := range records {
		if !r.HasPosition() {
			continue
		}
		d := e.distanceTo(g, r.Point())
		if d <= e.radius {
			hits = append(hits, PermitHit{Record: r, Distance: round1(d)})
		}
	}
	return hits
}

// ReceptorHit is one sensitive feature overlapping or near the input
// geometry. Within means direct intersection; otherwise Distance carries the
// centroid-to-boundary distance in metres.
type ReceptorHit struct {
	Layer    string  `json:"layer"`
	Name     string  `json:"name"`
	Within   bool    `json:"within"`
	Distance float64 `json:"distance_m,omitempty"`
}

// Receptors scans every loaded receptor layer. Features intersecting the
// geometry report "within"; others are included when their boundary lies
// inside the buffer of the geometry's centroid. Unloaded layers are skipped.
func (e *Engine) Receptors(g orb.Geometry) []ReceptorHit {
	c := centroid(g)
	hits := []ReceptorHit{}

	for _, name := range e.store.Receptors() {
		l, ok := e.store.Get(name)
		if !ok {
			zap.L().Debug("receptor layer not loaded, skipping", zap.String("layer", name))
			continue
		}
		for _, f := range l.Collection.Features {
			display, labelled := l.Label(f)
			if !labelled {
				display = l.Name
			}
			if intersects(g, f.Geometry) {
				hits = append(hits, ReceptorHit{Layer: l.Name, Name: display, Within: true})
				continue
			}
			d := distanceToBoundary(c, f.Geometry)
			if d < e.radius {
				hits = append(hits, ReceptorHit{Layer: l.Name, Name: display, Distance: round1(d)})
			}
		}
	}
	return hits
}

// ZoneResult is one output category with the deduplicated labels of its
// intersecting features. Labels preserve first-seen order across the
// category's source layers.
type ZoneResult struct {
	Category string   `json:"category"`
	Labels   []string `json:"labels"`
}

// ZoneIntersections reports, per declared category, the labels of features
// truly intersecting the input geometry. Unlabelled features count spatially
// but contribute no label; unloaded layers contribute nothing.
func (e *Engine) ZoneIntersections(g orb.Geometry) []ZoneResult {
	results := make([]ZoneResult, 0, len(e.store.Categories()))

	for _, cat := range e.store.Categories() {
		labels := []string{}
		seen := map[string]struct{}{}
		for _, name := range cat.Layers {
			l, ok := e.store.Get(name)
			if !ok {
				continue
			}
			for _, f := range l.Collection.Features {
				if !intersects(g, f.Geometry) {
					continue
				}
				label, usable := l.Label(f)
				if !usable {
					continue
				}
				if _, dup := seen[label]; dup {
					continue
				}
				seen[label] = struct{}{}
				labels = append(labels, label)
			}
		}
		results = append(results, ZoneResult{Category: cat.Name, Labels: labels})
	}
	return results
}

// distanceTo measures from the input geometry to a point: zero when the
// point is inside or on the geometry, else distance to its boundary (or to
// the geometry itself when it is a point).
func (e *Engine) distanceTo(g orb.Geometry, p orb.Point) float64 {
	switch v := g.(type) {
	case orb.Point:
		return geo.DistanceHaversine(v, p)
	default:
		if containsPoint(g, p) {
			return 0
		}
		return distanceToBoundary(p, v)
	}
}

func round1(d float64) float64 {
	return math.Round(d*10) / 10
}
