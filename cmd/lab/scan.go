package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"indicator-lab/internal/config"
	"indicator-lab/internal/domain"
	"indicator-lab/internal/logging"
	"indicator-lab/internal/marketdata"
	"indicator-lab/internal/marketdata/stub"
	"indicator-lab/internal/orchestrator"
	"indicator-lab/internal/storage/memory"
)

var (
	scanOffline bool
	scanSeed    int64
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one synchronous research pass and print the leaderboard",
	Long: `Executes a single run end to end against in-memory storage and prints
the resulting leaderboard. With --offline a deterministic synthetic data
source replaces the exchange, useful for smoke tests without network access.`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&scanOffline, "offline", false, "use the synthetic offline data source")
	scanCmd.Flags().Int64Var(&scanSeed, "seed", 0, "override the run's random seed")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if scanSeed != 0 {
		cfg.Run.RandomSeed = scanSeed
	}

	log, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}

	diags := marketdata.NewDiagnosticsRecorder()
	var client marketdata.Client
	if scanOffline {
		client = stub.NewClient(cfg.Run.RandomSeed)
	} else {
		client = marketdata.NewRESTClient(cfg.Exchange.BaseURL, diags,
			marketdata.WithLogger(log.With().Str("component", "marketdata").Logger()),
			marketdata.WithRateLimit(cfg.Exchange.RatePerSecond),
		)
	}

	orch := orchestrator.New(orchestrator.Options{
		Store:  memory.NewBundleStore(),
		Market: client,
		Cache:  memory.NewBarCache(),
		Diags:  diags,
		Logger: log.With().Str("component", "orchestrator").Logger(),
	})

	ctx := cmd.Context()
	rec, err := orch.CreateRun(ctx, cfg.Run)
	if err != nil {
		return err
	}
	log.Info().Str("run_id", rec.RunID).Msg("scan started")

	for {
		r, err := orch.GetRun(rec.RunID)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			if r.Status != domain.StatusCompleted {
				return fmt.Errorf("run %s: %s", r.Status, r.Error)
			}
			break
		}
		select {
		case <-ctx.Done():
			orch.CancelRun(rec.RunID)
			return ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}

	summary, err := orch.Results(rec.RunID)
	if err != nil {
		return err
	}
	printLeaderboard(summary)
	return nil
}

func printLeaderboard(summary *domain.ResultSummary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tTF\tEXPRESSION\tHORIZON\tERROR\tHIT\tPNL")
	for _, rec := range summary.Recommendations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.4f\t%.2f\t%.4f\n",
			rec.Symbol, rec.Timeframe, rec.Expression, rec.Horizon,
			rec.CompositeError, rec.HitRate, rec.PnL)
	}
	w.Flush()

	if u := summary.Universal; u != nil {
		fmt.Printf("\nuniversal: %s (score %.4f across %d outcomes)\n",
			u.Expression, u.Score, u.OutcomesConsidered)
	}
	for _, sk := range summary.SkippedPairs {
		fmt.Printf("skipped %s %s: %s\n", sk.Symbol, sk.Timeframe, sk.Reason)
	}
}
