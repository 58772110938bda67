package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cecmap",
	Short: "CEC environmental permit map and screening service",
	Long:  "Serves Trinidad & Tobago CEC permit data with GeoJSON reference layers, runs proximity/intersection analysis, and computes the NSL screening score for designated activities.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
