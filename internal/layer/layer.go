// Package layer holds the registry and in-memory cache of regulatory and
// ecological GeoJSON layers. The registry is an embedded manifest; documents
// are fetched over HTTP or read from local files produced by the shapefile
// importer.
package layer

import (
	_ "embed"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed layers.yaml
var manifestYAML []byte

// Definition is one registry entry. Exactly one of URL or Path is set.
type Definition struct {
	Name       string `yaml:"name" json:"name"`
	URL        string `yaml:"url,omitempty" json:"url,omitempty"`
	Path       string `yaml:"path,omitempty" json:"path,omitempty"`
	LabelField string `yaml:"label_field,omitempty" json:"label_field,omitempty"`
	Receptor   bool   `yaml:"receptor,omitempty" json:"receptor,omitempty"`
	Analysis   bool   `yaml:"analysis,omitempty" json:"analysis,omitempty"`
}

// Category maps one zone-analysis output bucket to the source layers that
// feed it.
type Category struct {
	Name   string   `yaml:"name" json:"name"`
	Layers []string `yaml:"layers" json:"layers"`
}

type manifest struct {
	Layers     []Definition `yaml:"layers"`
	Categories []Category   `yaml:"categories"`
}

func loadManifest() (*manifest, error) {
	var m manifest
	if err := yaml.Unmarshal(manifestYAML, &m); err != nil {
		return nil, eris.Wrap(err, "layer: parse manifest")
	}

	byName := make(map[string]struct{}, len(m.Layers))
	for _, d := range m.Layers {
		if d.Name == "" {
			return nil, eris.New("layer: manifest entry missing name")
		}
		if _, dup := byName[d.Name]; dup {
			return nil, eris.Errorf("layer: duplicate manifest entry %q", d.Name)
		}
		if d.URL == "" && d.Path == "" {
			return nil, eris.Errorf("layer: entry %q has no url or path", d.Name)
		}
		byName[d.Name] = struct{}{}
	}
	for _, c := range m.Categories {
		for _, name := range c.Layers {
			if _, ok := byName[name]; !ok {
				return nil, eris.Errorf("layer: category %q references unknown layer %q", c.Name, name)
			}
		}
	}
	return &m, nil
}

// Layer is a loaded registry entry with its feature collection.
type Layer struct {
	Definition
	Collection *geojson.FeatureCollection
}

// Label returns the human-readable name of a feature, read from the layer's
// label field. Missing or null-like placeholder values report ok=false; the
// feature still counts spatially, it just carries no label.
func (l *Layer) Label(f *geojson.Feature) (string, bool) {
	if l.LabelField == "" || f == nil || f.Properties == nil {
		return "", false
	}
	v, ok := f.Properties[l.LabelField]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" || isNullLike(s) {
		return "", false
	}
	return s, true
}

func isNullLike(s string) bool {
	switch strings.ToLower(s) {
	case "null", "<null>", "none", "n/a":
		return true
	}
	return false
}
