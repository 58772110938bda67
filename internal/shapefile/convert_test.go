package shapefile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

func TestToGeom_Point(t *testing.T) {
	g := toGeom(&shp.Point{X: -61.5, Y: 10.5})
	require.NotNil(t, g)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.Equal(t, []float64{-61.5, 10.5}, pt.FlatCoords())
}

func TestToGeom_Polygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 1,
		Parts:    []int32{0},
		Points: []shp.Point{
			{X: -61.5, Y: 10.5},
			{X: -61.5, Y: 10.6},
			{X: -61.4, Y: 10.6},
			{X: -61.4, Y: 10.5},
			{X: -61.5, Y: 10.5}, // closed ring
		},
	}

	g := toGeom(poly)
	require.NotNil(t, g)
	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestToGeom_MultiPartPolyLine(t *testing.T) {
	pl := &shp.PolyLine{
		NumParts: 2,
		Parts:    []int32{0, 3},
		Points: []shp.Point{
			{X: -61.5, Y: 10.5},
			{X: -61.4, Y: 10.5},
			{X: -61.3, Y: 10.5},
			{X: -61.5, Y: 10.7},
			{X: -61.4, Y: 10.7},
		},
	}

	g := toGeom(pl)
	require.NotNil(t, g)
	mls, ok := g.(*geom.MultiLineString)
	require.True(t, ok)
	assert.Equal(t, 2, mls.NumLineStrings())
}

func TestToGeom_Degenerate(t *testing.T) {
	assert.Nil(t, toGeom(nil))
	assert.Nil(t, toGeom(&shp.Polygon{}))
	assert.Nil(t, toGeom(&shp.PolyLine{}))
}

func TestAttributeValue(t *testing.T) {
	tests := []struct {
		raw  string
		want any
	}{
		{"Caroni", "Caroni"},
		{"  Caroni  ", "Caroni"},
		{"12.5", 12.5},
		{"-3", -3.0},
		{"", ""},
		{"CEC-123", "CEC-123"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, attributeValue(tt.raw), tt.raw)
	}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	shpPath := filepath.Join(dir, "waterways.shp")
	outPath := filepath.Join(dir, "waterways.geojson")

	w, err := shp.Create(shpPath, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("name", 25)}))

	w.Write(&shp.Point{X: -61.5, Y: 10.5})
	require.NoError(t, w.WriteAttribute(0, 0, "Caroni River"))
	w.Write(&shp.Point{X: -61.4, Y: 10.6})
	require.NoError(t, w.WriteAttribute(1, 0, "Oropouche River"))
	w.Close()

	n, err := Convert(shpPath, outPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)

	var doc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "FeatureCollection", doc.Type)
	require.Len(t, doc.Features, 2)
	assert.Equal(t, "Point", doc.Features[0].Geometry.Type)
	assert.Equal(t, "Caroni River", doc.Features[0].Properties["name"])
}
