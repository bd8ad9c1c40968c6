package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "stratrun"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Backtesting simulation engine for trading strategies",
		Version: version,
		Long: `stratrun simulates trading strategies against historical market data to
produce reproducible performance statistics used to accept or reject a
strategy before live deployment.

Inputs are already-materialized price/technical/holdings tables (CSV or
parquet); stratrun does not fetch, cache, or persist market data itself.`,
	}

	backtestCmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a single backtest from a YAML configuration",
		Long:  "Replays the configured strategies over the price history and prints the performance summary",
		RunE:  runBacktest,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Grid-search strategy parameters",
		Long:  "Runs one independent backtest per parameter combination and ranks results by the chosen metric",
		RunE:  runSweep,
	}

	walkforwardCmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Walk-forward validation over rolling windows",
		Long:  "Backtests a fixed strategy configuration across successive non-overlapping out-of-sample windows",
		RunE:  runWalkForward,
	}

	// Common data and config flags
	for _, cmd := range []*cobra.Command{backtestCmd, sweepCmd, walkforwardCmd} {
		cmd.Flags().String("config", "configs/backtest.yaml", "Run configuration YAML")
		cmd.Flags().String("prices", "", "Price table (CSV or parquet), required")
		cmd.Flags().String("holdings", "", "Holdings universe CSV, required")
		cmd.Flags().Var(newDateValue(), "start", "Override start date (YYYY-MM-DD)")
		cmd.Flags().Var(newDateValue(), "end", "Override end date (YYYY-MM-DD)")
		cmd.Flags().String("progress", "auto", "Progress output mode (auto|plain|json)")
	}

	for _, cmd := range []*cobra.Command{sweepCmd, walkforwardCmd} {
		cmd.Flags().Int("workers", 4, "Worker pool size")
		cmd.Flags().Duration("run-timeout", 5*time.Minute, "Per-run timeout")
		cmd.Flags().String("db", "", "Postgres DSN for result persistence (optional)")
		cmd.Flags().String("redis", "", "Redis address for result memoization (optional)")
		cmd.Flags().String("monitor-addr", "", "Serve /health, /metrics and progress feeds on this address (optional)")
		cmd.Flags().Float64("submit-rate", 0, "Max run submissions per second (0 = unlimited)")
	}

	backtestCmd.Flags().String("db", "", "Postgres DSN for result persistence (optional)")
	sweepCmd.Flags().String("metric", "sharpe", "Ranking metric for optimal parameter extraction")
	walkforwardCmd.Flags().Int("train-days", 60, "Training window length in days (bookkeeping only)")
	walkforwardCmd.Flags().Int("test-days", 20, "Test window length in days")

	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Start the standalone monitoring HTTP server",
		Long:  "Serves /health, /metrics, /progress and /ws/progress without running a sweep",
		RunE:  runMonitor,
	}
	monitorCmd.Flags().String("addr", "0.0.0.0:8080", "HTTP listen address")

	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(walkforwardCmd)
	rootCmd.AddCommand(monitorCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// progressMode resolves the requested progress output mode, falling back
// to TTY detection for "auto"
func progressMode(requested string) string {
	if requested != "auto" {
		return requested
	}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return "plain"
	}
	return "json"
}

func printKV(label string, format string, args ...interface{}) {
	fmt.Printf("   %-18s "+format+"\n", append([]interface{}{label + ":"}, args...)...)
}
