package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/scan"
	"github.com/vitalsight/harvest-cli/internal/store"
)

var (
	scanURL      string
	scanBrand    string
	scanManifest string
	scanSave     bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan one product URL or a whole URL manifest",
	Long:  "With --url, fetches a single page, runs the extraction waterfall, and prints the record as JSON; useful for debugging selectors. Without --url, scans every URL in the manifest and upserts the records.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if scanURL != "" {
			rec, err := env.Agent.Scan(ctx, scanBrand, scanURL)
			if err != nil {
				return eris.Wrapf(err, "scan %s", scanURL)
			}

			if scanSave {
				if _, err := env.Store.UpsertProducts(ctx, []model.ProductRecord{*rec}); err != nil {
					return err
				}
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}

		path := scanManifest
		if path == "" {
			path = cfg.Output.ManifestPath
		}
		candidates, err := store.ReadURLManifest(path)
		if err != nil {
			return eris.Wrapf(err, "read manifest %s", path)
		}
		if len(candidates) == 0 {
			return eris.New("manifest is empty: run discover first or pass --url")
		}

		var records []model.ProductRecord
		var failed int
		for _, cand := range candidates {
			rec, err := env.Agent.Scan(ctx, cand.Brand, cand.URL)
			if err != nil {
				if eris.Is(err, scan.ErrNotProduct) {
					continue
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				failed++
				zap.L().Warn("scan failed",
					zap.String("brand", cand.Brand),
					zap.String("url", cand.URL),
					zap.Error(err),
				)
				continue
			}
			records = append(records, *rec)
		}

		n, err := env.Store.UpsertProducts(ctx, records)
		if err != nil {
			return err
		}

		zap.L().Info("manifest scan complete",
			zap.Int("urls", len(candidates)),
			zap.Int("scanned", len(records)),
			zap.Int("failed", failed),
			zap.Int("upserted", n),
		)
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanURL, "url", "", "scan a single product page URL")
	scanCmd.Flags().StringVar(&scanBrand, "brand", "", "brand label used when page signals are inconclusive")
	scanCmd.Flags().StringVar(&scanManifest, "manifest", "", "manifest path for bulk scans (default from config)")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "with --url, upsert the record into the store")
	rootCmd.AddCommand(scanCmd)
}
