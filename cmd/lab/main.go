// Command lab runs the indicator discovery lab: an HTTP control surface for
// the research UI, a one-shot scan mode, and an export-bundle writer.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "lab",
	Short: "Indicator discovery and walk-forward backtesting lab",
	Long: `lab discovers predictive price-based indicator expressions over crypto
OHLCV data, validates them with walk-forward evaluation, and ranks the
survivors into per-pair and universal recommendations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd, scanCmd, reportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
