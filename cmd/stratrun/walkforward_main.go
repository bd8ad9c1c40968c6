package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/stratrun/internal/harness"
)

// runWalkForward executes walk-forward validation over rolling windows
func runWalkForward(cmd *cobra.Command, args []string) error {
	inputs, err := loadInputs(cmd)
	if err != nil {
		return err
	}

	trainDays, _ := cmd.Flags().GetInt("train-days")
	testDays, _ := cmd.Flags().GetInt("test-days")
	if trainDays <= 0 {
		trainDays = inputs.cfg.Sweep.TrainDays
	}
	if testDays <= 0 {
		testDays = inputs.cfg.Sweep.TestDays
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hcfg, _, err := buildHarnessConfig(ctx, cmd, inputs)
	if err != nil {
		return err
	}

	results, err := harness.WalkForward(ctx, hcfg, trainDays, testDays)
	if err != nil {
		return fmt.Errorf("walk-forward validation failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Println("Date range too short for any walk-forward window")
		return nil
	}

	fmt.Printf("Walk-forward: %d windows (train=%dd, test=%dd)\n\n", len(results), trainDays, testDays)
	for _, wr := range results {
		fmt.Printf("window %2d  %s → %s  sharpe=%.3f  return=%.2f%%  drawdown=%.2f%%  trades=%.0f\n",
			wr.Window.Index,
			wr.Window.TestStart.Format("2006-01-02"),
			wr.Window.TestEnd.Format("2006-01-02"),
			wr.Metrics["sharpe"],
			wr.Metrics["total_return"]*100,
			wr.Metrics["max_drawdown"]*100,
			wr.Metrics["total_trades"])
	}

	log.Info().Int("windows", len(results)).Msg("Walk-forward completed")
	return nil
}
