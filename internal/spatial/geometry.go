package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

const onSegmentEpsilon = 1e-9

// pointOnSegment reports whether p lies on the segment ab, within a small
// tolerance in degrees.
func pointOnSegment(p, a, b orb.Point) bool {
	cross := (b[0]-a[0])*(p[1]-a[1]) - (b[1]-a[1])*(p[0]-a[0])
	if math.Abs(cross) > onSegmentEpsilon {
		return false
	}
	if p[0] < math.Min(a[0], b[0])-onSegmentEpsilon || p[0] > math.Max(a[0], b[0])+onSegmentEpsilon {
		return false
	}
	if p[1] < math.Min(a[1], b[1])-onSegmentEpsilon || p[1] > math.Max(a[1], b[1])+onSegmentEpsilon {
		return false
	}
	return true
}

// ringContains is a ray-casting test with inclusive boundaries: a point on a
// ring edge or vertex counts as inside.
func ringContains(ring orb.Ring, p orb.Point) bool {
	if len(ring) < 3 {
		return false
	}
	for i := 0; i < len(ring)-1; i++ {
		if pointOnSegment(p, ring[i], ring[i+1]) {
			return true
		}
	}
	// Ring may or may not be explicitly closed.
	if ring[0] != ring[len(ring)-1] && pointOnSegment(p, ring[len(ring)-1], ring[0]) {
		return true
	}

	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		if (ring[i][1] > p[1]) != (ring[j][1] > p[1]) {
			x := (ring[j][0]-ring[i][0])*(p[1]-ring[i][1])/(ring[j][1]-ring[i][1]) + ring[i][0]
			if p[0] < x {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// polygonContains applies inclusive-boundary containment: inside the outer
// ring and not strictly inside a hole. A point on a hole boundary still
// counts as contained.
func polygonContains(poly orb.Polygon, p orb.Point) bool {
	if len(poly) == 0 || !ringContains(poly[0], p) {
		return false
	}
	for _, hole := range poly[1:] {
		if !ringContains(hole, p) {
			continue
		}
		// On the hole boundary is in; strictly inside the hole is out.
		onEdge := false
		for i := 0; i < len(hole)-1; i++ {
			if pointOnSegment(p, hole[i], hole[i+1]) {
				onEdge = true
				break
			}
		}
		if !onEdge {
			return false
		}
	}
	return true
}

func segmentsIntersect(a1, a2, b1, b2 orb.Point) bool {
	d1 := orient(b1, b2, a1)
	d2 := orient(b1, b2, a2)
	d3 := orient(a1, a2, b1)
	d4 := orient(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	// Collinear touches count.
	if d1 == 0 && pointOnSegment(a1, b1, b2) {
		return true
	}
	if d2 == 0 && pointOnSegment(a2, b1, b2) {
		return true
	}
	if d3 == 0 && pointOnSegment(b1, a1, a2) {
		return true
	}
	if d4 == 0 && pointOnSegment(b2, a1, a2) {
		return true
	}
	return false
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// closestOnSegment projects p onto ab in a local equirectangular frame,
// good enough at island scale.
func closestOnSegment(p, a, b orb.Point) orb.Point {
	k := math.Cos(p[1] * math.Pi / 180)
	ax, ay := (a[0]-p[0])*k, a[1]-p[1]
	bx, by := (b[0]-p[0])*k, b[1]-p[1]
	dx, dy := bx-ax, by-ay

	den := dx*dx + dy*dy
	if den == 0 {
		return a
	}
	t := -(ax*dx + ay*dy) / den
	t = math.Max(0, math.Min(1, t))
	return orb.Point{a[0] + (b[0]-a[0])*t, a[1] + (b[1]-a[1])*t}
}

// pointSegmentDistance returns the great-circle distance in metres from p to
// the nearest point of segment ab.
func pointSegmentDistance(p, a, b orb.Point) float64 {
	return geo.DistanceHaversine(p, closestOnSegment(p, a, b))
}

// distanceToBoundary returns the shortest distance in metres from p to the
// boundary of g. Containment is not considered; callers test intersection
// first.
func distanceToBoundary(p orb.Point, g orb.Geometry) float64 {
	min := math.Inf(1)
	eachSegment(g, func(a, b orb.Point) {
		if d := pointSegmentDistance(p, a, b); d < min {
			min = d
		}
	})
	if math.IsInf(min, 1) {
		// Point-like geometry with no segments.
		if pt, ok := g.(orb.Point); ok {
			return geo.DistanceHaversine(p, pt)
		}
	}
	return min
}

func eachSegment(g orb.Geometry, fn func(a, b orb.Point)) {
	switch v := g.(type) {
	case orb.Point:
	case orb.MultiPoint:
	case orb.LineString:
		for i := 0; i < len(v)-1; i++ {
			fn(v[i], v[i+1])
		}
	case orb.MultiLineString:
		for _, ls := range v {
			eachSegment(ls, fn)
		}
	case orb.Ring:
		eachSegment(orb.LineString(v), fn)
		if len(v) > 1 && v[0] != v[len(v)-1] {
			fn(v[len(v)-1], v[0])
		}
	case orb.Polygon:
		for _, r := range v {
			eachSegment(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			eachSegment(p, fn)
		}
	case orb.Collection:
		for _, c := range v {
			eachSegment(c, fn)
		}
	}
}

func eachPoint(g orb.Geometry, fn func(p orb.Point)) {
	switch v := g.(type) {
	case orb.Point:
		fn(v)
	case orb.MultiPoint:
		for _, p := range v {
			fn(p)
		}
	case orb.LineString:
		for _, p := range v {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range v {
			eachPoint(ls, fn)
		}
	case orb.Ring:
		eachPoint(orb.LineString(v), fn)
	case orb.Polygon:
		for _, r := range v {
			eachPoint(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range v {
			eachPoint(p, fn)
		}
	case orb.Collection:
		for _, c := range v {
			eachPoint(c, fn)
		}
	}
}

// containsPoint reports inclusive containment of p in g for area geometries,
// or incidence for lines and points.
func containsPoint(g orb.Geometry, p orb.Point) bool {
	switch v := g.(type) {
	case orb.Point:
		return geo.DistanceHaversine(v, p) < 1e-6
	case orb.Polygon:
		return polygonContains(v, p)
	case orb.MultiPolygon:
		for _, poly := range v {
			if polygonContains(poly, p) {
				return true
			}
		}
		return false
	case orb.LineString:
		for i := 0; i < len(v)-1; i++ {
			if pointOnSegment(p, v[i], v[i+1]) {
				return true
			}
		}
		return false
	case orb.MultiLineString:
		for _, ls := range v {
			if containsPoint(ls, p) {
				return true
			}
		}
		return false
	case orb.Collection:
		for _, c := range v {
			if containsPoint(c, p) {
				return true
			}
		}
		return false
	}
	return false
}

// intersects reports whether geometries a and b share at least one point,
// with inclusive boundary semantics.
func intersects(a, b orb.Geometry) bool {
	// Any vertex of one inside (or on) the other.
	hit := false
	eachPoint(a, func(p orb.Point) {
		if !hit && containsPoint(b, p) {
			hit = true
		}
	})
	if hit {
		return true
	}
	eachPoint(b, func(p orb.Point) {
		if !hit && containsPoint(a, p) {
			hit = true
		}
	})
	if hit {
		return true
	}

	// Crossing edges with no vertex containment.
	eachSegment(a, func(a1, a2 orb.Point) {
		if hit {
			return
		}
		eachSegment(b, func(b1, b2 orb.Point) {
			if !hit && segmentsIntersect(a1, a2, b1, b2) {
				hit = true
			}
		})
	})
	return hit
}

// centroid returns the representative point of g used for distance
// measurement: the point itself, or the area/length centroid.
func centroid(g orb.Geometry) orb.Point {
	if p, ok := g.(orb.Point); ok {
		return p
	}
	c, _ := planar.CentroidArea(g)
	return c
}
