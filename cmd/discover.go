package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/sitemap"
	"github.com/vitalsight/harvest-cli/internal/store"
	"github.com/vitalsight/harvest-cli/internal/urlfilter"
)

var (
	discoverDomain string
	discoverBrand  string
	discoverOut    string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover product URLs from brand sitemaps",
	Long:  "Walks robots.txt and sitemap indexes for each target domain, filters page URLs down to product pages, and writes the URL manifest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var targets []model.Target
		if discoverDomain != "" {
			brand := discoverBrand
			if brand == "" {
				brand = discoverDomain
			}
			targets = []model.Target{{Brand: brand, Domain: discoverDomain}}
		} else {
			var err error
			targets, err = store.ReadTargets(cfg.Output.DomainsCSV)
			if err != nil {
				return eris.Wrapf(err, "read targets from %s", cfg.Output.DomainsCSV)
			}
		}
		if len(targets) == 0 {
			return eris.New("no targets: pass --domain or populate the domains CSV")
		}

		filter := urlfilter.New(cfg.Filter.IncludeTokens, cfg.Filter.ExcludeTokens, cfg.Filter.RelaxedDomains)
		discoverer := sitemap.New(cfg.Discovery, filter)

		var candidates []model.CandidateURL
		for _, target := range targets {
			res, err := discoverer.Discover(ctx, target)
			if err != nil {
				zap.L().Error("discovery failed",
					zap.String("brand", target.Brand),
					zap.String("domain", target.Domain),
					zap.Error(err),
				)
				continue
			}

			urls := res.ProductURLs
			if cap := cfg.Batch.CapFor(target.Brand); len(urls) > cap {
				urls = urls[:cap]
			}
			for _, u := range urls {
				candidates = append(candidates, model.CandidateURL{Brand: target.Brand, URL: u})
			}

			zap.L().Info("discovered",
				zap.String("brand", target.Brand),
				zap.Int("sitemaps", res.SitemapCount),
				zap.Int("parsed", len(res.ParsedURLs)),
				zap.Int("products", len(res.ProductURLs)),
				zap.Int("kept", len(urls)),
			)
		}

		out := discoverOut
		if out == "" {
			out = cfg.Output.ManifestPath
		}
		if err := store.WriteURLManifest(out, candidates); err != nil {
			return err
		}

		zap.L().Info("manifest written", zap.String("path", out), zap.Int("urls", len(candidates)))
		return nil
	},
}

func init() {
	discoverCmd.Flags().StringVar(&discoverDomain, "domain", "", "discover a single domain instead of the domains CSV")
	discoverCmd.Flags().StringVar(&discoverBrand, "brand", "", "brand label for --domain")
	discoverCmd.Flags().StringVar(&discoverOut, "out", "", "manifest output path (default from config)")
	rootCmd.AddCommand(discoverCmd)
}
