// Package shapefile converts ESRI shapefiles into GeoJSON documents the
// layer store can serve. Attribute fields become the feature property bag.
package shapefile

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

// Convert reads a shapefile and writes a GeoJSON feature collection to
// outPath. Coordinates are passed through unchanged; sources are expected to
// already be in WGS84.
func Convert(shpPath, outPath string) (int, error) {
	reader, err := shp.Open(shpPath)
	if err != nil {
		return 0, eris.Wrap(err, "shapefile: open")
	}
	defer func() { _ = reader.Close() }()

	log := zap.L().With(zap.String("component", "shapefile"), zap.String("path", shpPath))

	fields := reader.Fields()
	fc := &geojson.FeatureCollection{}

	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		g := toGeom(shape)
		if g == nil {
			skipped++
			continue
		}

		props := make(map[string]any, len(fields))
		for i, field := range fields {
			props[fieldName(field)] = attributeValue(reader.Attribute(i))
		}

		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         strconv.Itoa(n),
			Geometry:   g,
			Properties: props,
		})
	}

	data, err := json.Marshal(fc)
	if err != nil {
		return 0, eris.Wrap(err, "shapefile: marshal feature collection")
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return 0, eris.Wrap(err, "shapefile: write geojson")
	}

	log.Info("shapefile converted",
		zap.Int("features", len(fc.Features)),
		zap.Int("skipped", skipped),
		zap.String("out", outPath),
	)
	return len(fc.Features), nil
}

// toGeom converts a go-shp shape to a go-geom geometry. Unsupported or
// degenerate shapes return nil.
func toGeom(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineToMultiLineString(s)
	case *shp.Polygon:
		return polygonToMultiPolygon(s)
	}
	return nil
}

func polyLineToMultiLineString(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}

	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i := int32(0); i < pl.NumParts; i++ {
		ls := geom.NewLineStringFlat(geom.XY, partCoords(pl.Points, pl.Parts, i, pl.NumParts))
		if err := mls.Push(ls); err != nil {
			zap.L().Debug("shapefile: skipping malformed linestring part", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

func polygonToMultiPolygon(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i := int32(0); i < p.NumParts; i++ {
		ring := geom.NewLinearRingFlat(geom.XY, partCoords(p.Points, p.Parts, i, p.NumParts))
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(ring); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon ring", zap.Int32("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("shapefile: skipping malformed polygon part", zap.Int32("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// partCoords extracts part i of a multi-part shape as flat coordinate pairs.
func partCoords(points []shp.Point, parts []int32, i, numParts int32) []float64 {
	start := parts[i]
	end := int32(len(points))
	if i+1 < numParts {
		end = parts[i+1]
	}

	flat := make([]float64, 0, (end-start)*2)
	for j := start; j < end; j++ {
		flat = append(flat, points[j].X, points[j].Y)
	}
	return flat
}

// fieldName trims the NUL padding dbf headers carry.
func fieldName(f shp.Field) string {
	name := make([]byte, 0, len(f.Name))
	for _, b := range f.Name {
		if b == 0 {
			break
		}
		name = append(name, b)
	}
	return string(name)
}

// attributeValue normalizes a dbf attribute: numeric strings become numbers,
// everything else is trimmed text.
func attributeValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil && looksNumeric(s) {
		return n
	}
	return s
}

func looksNumeric(s string) bool {
	for i, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '.' || c == '-' || c == '+':
			if c == '-' || c == '+' {
				if i != 0 {
					return false
				}
			}
		default:
			return false
		}
	}
	return true
}
