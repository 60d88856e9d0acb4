package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vitalsight/harvest-cli/internal/issues"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the latest run health report and store counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		counts, err := st.CountByBrand(ctx)
		if err != nil {
			return err
		}

		brands := make([]string, 0, len(counts))
		total := 0
		for b, n := range counts {
			brands = append(brands, b)
			total += n
		}
		sort.Strings(brands)

		fmt.Printf("products: %d across %d brands\n", total, len(brands))
		for _, b := range brands {
			fmt.Printf("  %-24s %d\n", b, counts[b])
		}

		snap, err := readLatestIssues(cfg.Output.IssueDir)
		if os.IsNotExist(eris.Cause(err)) {
			fmt.Println("\nno issue snapshot yet; run a batch first")
			return nil
		}
		if err != nil {
			return err
		}

		fmt.Printf("\nrun %s (%s): %d tickets\n",
			snap.RunID, snap.GeneratedAt.Format("2006-01-02 15:04"), len(snap.Tickets))
		for _, t := range snap.Tickets {
			fmt.Printf("  [%s] %s %s: %s\n", t.Severity, t.Brand, t.Stage, t.Problem)
			fmt.Printf("       -> %s\n", t.Action)
		}
		return nil
	},
}

func readLatestIssues(dir string) (*issues.Snapshot, error) {
	path := filepath.Join(dir, "issues_latest.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read %s", path)
	}
	var snap issues.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, eris.Wrapf(err, "decode %s", path)
	}
	return &snap, nil
}

func init() {
	rootCmd.AddCommand(reportCmd)
}
