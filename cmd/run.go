package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalsight/harvest-cli/internal/model"
	"github.com/vitalsight/harvest-cli/internal/store"
)

var runJSON bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full batch: discover, scan, persist, evaluate",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		targets, err := store.ReadTargets(cfg.Output.DomainsCSV)
		if err != nil {
			return eris.Wrapf(err, "read targets from %s", cfg.Output.DomainsCSV)
		}
		if len(targets) == 0 {
			return eris.New("no targets in " + cfg.Output.DomainsCSV)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		result, err := env.Orchestrator.Run(ctx, targets)
		if err != nil {
			return eris.Wrap(err, "batch run")
		}

		if runJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		zap.L().Info("run complete",
			zap.String("run_id", result.RunID),
			zap.Int("targets", result.Targets),
			zap.Int("records", result.Records),
			zap.Int("pending_urls", result.PendingURL),
			zap.Int("tickets", len(result.Tickets)),
		)
		for _, t := range result.Tickets {
			logTicket(t)
		}
		return nil
	},
}

func logTicket(t model.IssueTicket) {
	fields := []zap.Field{
		zap.String("severity", string(t.Severity)),
		zap.String("brand", t.Brand),
		zap.String("stage", string(t.Stage)),
		zap.String("action", t.Action),
	}
	if t.Severity == model.SeverityP0 {
		zap.L().Error(t.Problem, fields...)
	} else {
		zap.L().Warn(t.Problem, fields...)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}
