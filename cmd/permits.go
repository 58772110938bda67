package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ema-gis/cecmap/internal/permit"
)

var permitsCmd = &cobra.Command{
	Use:   "permits",
	Short: "Import and inspect the CEC permit dataset",
}

var (
	importURL  string
	importFile string
	importName string
)

var permitsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Fetch the permit dataset and store it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var records []permit.Record
		switch {
		case importFile != "":
			records, err = permit.LoadFromXLSX(importFile)
		case importURL != "":
			records, err = permit.LoadFromURL(ctx, nil, importURL)
		case cfg.Permits.DatasetURL != "":
			records, err = permit.LoadFromURL(ctx, nil, cfg.Permits.DatasetURL)
		default:
			return eris.New("no dataset source: pass --url or --file, or set CECMAP_PERMITS_DATASET_URL")
		}
		if err != nil {
			return err
		}

		id, err := st.SaveDataset(ctx, importName, records)
		if err != nil {
			return err
		}

		positioned := 0
		for i := range records {
			if records[i].HasPosition() {
				positioned++
			}
		}
		zap.L().Info("permit dataset imported",
			zap.String("dataset", id),
			zap.Int("records", len(records)),
			zap.Int("positioned", positioned),
		)
		fmt.Printf("imported %d permits (%d with positions) as dataset %s\n", len(records), positioned, id)
		return nil
	},
}

var listFilter permit.Filter

var permitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored permits with optional filters",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		_, records, err := st.LatestDataset(ctx)
		if err != nil {
			if isNotFound(err) {
				return eris.New("no permit dataset stored, run `cecmap permits import` first")
			}
			return err
		}

		matched := listFilter.Apply(records)
		for _, r := range matched {
			pos := "no position"
			if r.HasPosition() {
				pos = fmt.Sprintf("%.5f,%.5f", *r.Latitude, *r.Longitude)
			}
			fmt.Printf("%-12s %d  %-30.30s  %-40.40s  %s\n", r.Reference, r.Year, r.Applicant, r.Activity, pos)
		}
		fmt.Printf("%d of %d permits matched\n", len(matched), len(records))
		return nil
	},
}

func init() {
	permitsImportCmd.Flags().StringVar(&importURL, "url", "", "dataset endpoint (default from config)")
	permitsImportCmd.Flags().StringVar(&importFile, "file", "", "local XLSX spreadsheet instead of the endpoint")
	permitsImportCmd.Flags().StringVar(&importName, "name", "upstream", "dataset name")

	permitsListCmd.Flags().IntVar(&listFilter.YearStart, "year-start", 0, "earliest year")
	permitsListCmd.Flags().IntVar(&listFilter.YearEnd, "year-end", 0, "latest year")
	permitsListCmd.Flags().StringVar(&listFilter.Status, "status", "", "application determination")
	permitsListCmd.Flags().StringVar(&listFilter.Query, "query", "", "free-text match on reference, applicant, activity, location")

	permitsCmd.AddCommand(permitsImportCmd, permitsListCmd)
	rootCmd.AddCommand(permitsCmd)
}
