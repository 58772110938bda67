package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/layer"
	"github.com/ema-gis/cecmap/internal/shapefile"
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Inspect and prefetch the GeoJSON reference layers",
}

var layersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the registered layers",
	RunE: func(cmd *cobra.Command, args []string) error {
		layers, err := layer.NewStore(nil)
		if err != nil {
			return err
		}
		for _, d := range layers.Definitions() {
			flags := ""
			if d.Analysis {
				flags += " analysis"
			}
			if d.Receptor {
				flags += " receptor"
			}
			fmt.Printf("%-45s%s\n", d.Name, flags)
		}
		return nil
	},
}

var layersPreloadCmd = &cobra.Command{
	Use:   "preload",
	Short: "Fetch every analysis-required layer",
	RunE: func(cmd *cobra.Command, args []string) error {
		layers, err := layer.NewStore(&http.Client{
			Timeout: time.Duration(cfg.Layers.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return err
		}
		layers.Preload(cmd.Context())

		for _, name := range layers.AnalysisRequired() {
			if _, ok := layers.Get(name); !ok {
				fmt.Printf("failed: %s\n", name)
			}
		}
		return nil
	},
}

var layersImportShpCmd = &cobra.Command{
	Use:   "import-shp <shapefile> <output.geojson>",
	Short: "Convert an ESRI shapefile to a GeoJSON layer document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := shapefile.Convert(args[0], args[1])
		if err != nil {
			return err
		}
		zap.L().Info("shapefile converted",
			zap.String("source", args[0]),
			zap.String("output", args[1]),
			zap.Int("features", n),
		)
		fmt.Printf("wrote %d features to %s\n", n, args[1])
		return nil
	},
}

func init() {
	layersCmd.AddCommand(layersListCmd, layersPreloadCmd, layersImportShpCmd)
	rootCmd.AddCommand(layersCmd)
}
