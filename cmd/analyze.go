package main

import (
	"encoding/json"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	analyzeLat     float64
	analyzeLon     float64
	analyzeGeoJSON string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run proximity and intersection analysis for a site",
	Long:  "Preloads the analysis-required layers, then reports permits within the buffer, sensitive receptors, and zone intersections for a point (--lat/--lon) or a GeoJSON geometry file (--geojson).",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var g orb.Geometry
		switch {
		case analyzeGeoJSON != "":
			data, err := os.ReadFile(analyzeGeoJSON)
			if err != nil {
				return eris.Wrap(err, "read geometry file")
			}
			gj, err := geojson.UnmarshalGeometry(data)
			if err != nil {
				return eris.Wrap(err, "parse geometry")
			}
			g = gj.Geometry()
		case cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon"):
			g = orb.Point{analyzeLon, analyzeLat}
		default:
			return eris.New("site geometry required: pass --lat/--lon or --geojson")
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		env.Layers.Preload(ctx)

		missing := []string{}
		for _, name := range env.Layers.AnalysisRequired() {
			if _, ok := env.Layers.Get(name); !ok {
				missing = append(missing, name)
			}
		}

		result := map[string]any{
			"radius_m":       env.Engine.Radius(),
			"permits":        env.Engine.NearbyPermits(g, env.Permits()),
			"receptors":      env.Engine.Receptors(g),
			"zones":          env.Engine.ZoneIntersections(g),
			"missing_layers": missing,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	analyzeCmd.Flags().Float64Var(&analyzeLat, "lat", 0, "site latitude")
	analyzeCmd.Flags().Float64Var(&analyzeLon, "lon", 0, "site longitude")
	analyzeCmd.Flags().StringVar(&analyzeGeoJSON, "geojson", "", "GeoJSON geometry file for the site")
	rootCmd.AddCommand(analyzeCmd)
}
