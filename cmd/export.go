package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/store"
)

var (
	exportFormat string
	exportOut    string
	exportBrand  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the product database to CSV or XLSX",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		records, err := st.ListProducts(ctx, store.ProductFilter{Brand: exportBrand})
		if err != nil {
			return err
		}

		out := exportOut
		switch exportFormat {
		case "csv":
			if out == "" {
				out = cfg.Output.SnapshotCSV
			}
			err = store.WriteSnapshot(out, records)
		case "xlsx":
			if out == "" {
				out = "harvest_export.xlsx"
			}
			err = store.WriteXLSX(out, records)
		default:
			return eris.Errorf("unsupported export format: %s", exportFormat)
		}
		if err != nil {
			return err
		}

		zap.L().Info("export written",
			zap.String("format", exportFormat),
			zap.String("path", out),
			zap.Int("records", len(records)),
		)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "export format: csv or xlsx")
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output path (defaults per format)")
	exportCmd.Flags().StringVar(&exportBrand, "brand", "", "export a single brand only")
	rootCmd.AddCommand(exportCmd)
}
