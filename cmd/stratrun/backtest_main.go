package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/quantlab/stratrun/internal/analyze"
	"github.com/quantlab/stratrun/internal/config"
	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/persistence"
	"github.com/quantlab/stratrun/internal/sim"
)

// runInputs bundles everything a simulation command needs
type runInputs struct {
	cfg      *config.Config
	prices   *data.PriceFrame
	holdings []data.Holding
	start    time.Time
	end      time.Time
}

// loadInputs resolves config, data files and the effective date range for
// a simulation command
func loadInputs(cmd *cobra.Command) (*runInputs, error) {
	configPath, _ := cmd.Flags().GetString("config")
	pricesPath, _ := cmd.Flags().GetString("prices")
	holdingsPath, _ := cmd.Flags().GetString("holdings")

	if pricesPath == "" {
		return nil, fmt.Errorf("--prices is required")
	}
	if holdingsPath == "" {
		return nil, fmt.Errorf("--holdings is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	var prices *data.PriceFrame
	switch strings.ToLower(filepath.Ext(pricesPath)) {
	case ".parquet":
		prices, err = data.LoadPricesParquet(pricesPath)
	default:
		prices, err = data.LoadPricesCSV(pricesPath)
	}
	if err != nil {
		return nil, err
	}

	holdings, err := data.LoadHoldingsCSV(holdingsPath)
	if err != nil {
		return nil, err
	}

	start, end, err := cfg.DateRange()
	if err != nil {
		return nil, err
	}
	if t, ok := dateFlag(cmd.Flags(), "start"); ok {
		start = t
	}
	if t, ok := dateFlag(cmd.Flags(), "end"); ok {
		end = t
	}

	dates := prices.Dates()
	if start.IsZero() && len(dates) > 0 {
		start = dates[0]
	}
	if end.IsZero() && len(dates) > 0 {
		end = dates[len(dates)-1]
	}

	return &runInputs{
		cfg:      cfg,
		prices:   prices,
		holdings: holdings,
		start:    start,
		end:      end,
	}, nil
}

// runBacktest executes a single configured backtest and prints its summary
func runBacktest(cmd *cobra.Command, args []string) error {
	inputs, err := loadInputs(cmd)
	if err != nil {
		return err
	}

	strategies, err := inputs.cfg.BuildStrategies()
	if err != nil {
		return err
	}

	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = s.Name()
	}
	log.Info().
		Strs("strategies", names).
		Str("start", inputs.start.Format("2006-01-02")).
		Str("end", inputs.end.Format("2006-01-02")).
		Int("price_rows", inputs.prices.Len()).
		Int("holdings", len(inputs.holdings)).
		Msg("Starting backtest")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	engine := sim.NewEngine(inputs.cfg.EngineConfig())
	result, err := engine.Run(ctx, strategies, inputs.prices, nil, inputs.holdings,
		inputs.start, inputs.end)
	if err != nil {
		return fmt.Errorf("backtest failed: %w", err)
	}

	analyzer := analyze.New(result)
	fmt.Println(analyzer.Summary())

	if top := analyzer.TopTrades(3); len(top) > 0 {
		fmt.Println("Best trades:")
		for _, t := range top {
			fmt.Printf("   %-8s %s  pnl=%.2f (%.2f%%)\n",
				t.Symbol, t.EntryDate.Format("2006-01-02"), t.PnL, t.PnLPct*100)
		}
	}

	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		if err := saveResult(ctx, dsn, result); err != nil {
			log.Warn().Err(err).Msg("Failed to persist backtest result")
		}
	}

	log.Info().
		Int("trades", len(result.Trades)).
		Float64("final_equity", result.Metrics["final_equity"]).
		Float64("sharpe", result.Metrics["sharpe"]).
		Msg("Backtest completed")
	return nil
}

func saveResult(ctx context.Context, dsn string, result *sim.Result) error {
	store, err := persistence.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	runID := uuid.New().String()
	if err := store.SaveResult(ctx, runID, result); err != nil {
		return err
	}
	log.Info().Str("run_id", runID).Msg("Backtest result persisted")
	return nil
}
