package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/ema-gis/cecmap/internal/catalog"
	"github.com/ema-gis/cecmap/internal/screening"
)

var scoreXLSX string

var scoreCmd = &cobra.Command{
	Use:   "score <session.json>",
	Short: "Compute the NSL screening score for a saved session",
	Long:  "Reads a session snapshot file (selected activities plus risk ratings), computes the NSL composite score and EIA SOP decision, and prints the model output. --xlsx additionally writes the spreadsheet summary.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "read session file")
		}

		var snap screening.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return eris.Wrap(err, "parse session file")
		}

		cat, err := catalog.New()
		if err != nil {
			return err
		}

		sess := screening.NewSession()
		sess.Restore(snap)
		if !sess.AssessmentStarted() {
			if err := sess.BeginAssessment(); err != nil {
				return err
			}
		}

		out, err := sess.GenerateOutput(cat, time.Now())
		if err != nil {
			return err
		}

		if scoreXLSX != "" {
			f, err := os.Create(scoreXLSX)
			if err != nil {
				return eris.Wrap(err, "create xlsx file")
			}
			defer f.Close() //nolint:errcheck
			if err := out.WriteXLSX(f); err != nil {
				return err
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreXLSX, "xlsx", "", "write the model-output spreadsheet to this path")
	rootCmd.AddCommand(scoreCmd)
}
