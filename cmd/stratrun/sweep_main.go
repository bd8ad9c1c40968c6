package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/quantlab/stratrun/internal/config"
	"github.com/quantlab/stratrun/internal/harness"
	"github.com/quantlab/stratrun/internal/monitor"
	"github.com/quantlab/stratrun/internal/persistence"
	"github.com/quantlab/stratrun/internal/telemetry"
)

// buildHarnessConfig assembles the shared harness wiring for sweep and
// walk-forward commands: worker pool, optional redis cache, rate limiter,
// telemetry and the monitor progress feed.
func buildHarnessConfig(ctx context.Context, cmd *cobra.Command, inputs *runInputs) (*harness.Config, *monitor.Server, error) {
	workers, _ := cmd.Flags().GetInt("workers")
	runTimeout, _ := cmd.Flags().GetDuration("run-timeout")
	redisAddr, _ := cmd.Flags().GetString("redis")
	monitorAddr, _ := cmd.Flags().GetString("monitor-addr")
	submitRate, _ := cmd.Flags().GetFloat64("submit-rate")

	sweepCfg := inputs.cfg.Sweep
	strategyName := sweepCfg.Strategy
	if strategyName == "" && len(inputs.cfg.Strategies) > 0 {
		strategyName = inputs.cfg.Strategies[0].Name
	}
	baseParams := map[string]float64{}
	for _, sc := range inputs.cfg.Strategies {
		if sc.Name == strategyName {
			baseParams = sc.Params
			break
		}
	}

	hcfg := &harness.Config{
		Engine:        inputs.cfg.EngineConfig(),
		StrategyName:  strategyName,
		BaseParams:    baseParams,
		Prices:        inputs.prices,
		Holdings:      inputs.holdings,
		Start:         inputs.start,
		End:           inputs.end,
		Workers:       workers,
		PerRunTimeout: runTimeout,
		Telemetry:     telemetry.NewCollector(),
	}

	if redisAddr == "" {
		redisAddr = sweepCfg.RedisAddr
	}
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		ttl := sweepCfg.CacheTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		hcfg.Cache = harness.NewRedisCache(client, ttl)
		log.Info().Str("addr", redisAddr).Dur("ttl", ttl).Msg("Result cache enabled")
	}

	if submitRate > 0 {
		hcfg.SubmitLimit = rate.NewLimiter(rate.Limit(submitRate), 1)
	}

	var server *monitor.Server
	if monitorAddr != "" {
		server = monitor.NewServer(monitorAddr, hcfg.Telemetry)
		go func() {
			if err := server.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("Monitor server exited")
			}
		}()
	}

	progressFlag, _ := cmd.Flags().GetString("progress")
	hcfg.OnProgress = progressFunc(progressMode(progressFlag), server)

	return hcfg, server, nil
}

// progressFunc builds the per-run progress callback for the requested
// output mode, also feeding the monitor server when one is running.
func progressFunc(mode string, server *monitor.Server) func(harness.ProgressEvent) {
	return func(event harness.ProgressEvent) {
		if server != nil {
			server.Publish(event)
		}
		switch mode {
		case "plain":
			if event.Completed%10 == 0 || event.Completed == event.Total {
				fmt.Printf("  [%d/%d] runs completed\n", event.Completed, event.Total)
			}
		case "json":
			log.Info().
				Str("run_id", event.RunID).
				Int("completed", event.Completed).
				Int("total", event.Total).
				Str("status", event.Status).
				Msg("Run completed")
		}
	}
}

// rankMetric resolves the ranking metric: an explicitly set --metric flag
// wins over the config; the flag default only applies when the config is
// silent too.
func rankMetric(cmd *cobra.Command, cfg *config.Config) string {
	metric, _ := cmd.Flags().GetString("metric")
	if !cmd.Flags().Changed("metric") && cfg.Sweep.RankMetric != "" {
		metric = cfg.Sweep.RankMetric
	}
	return metric
}

// runSweep executes a parameter grid search
func runSweep(cmd *cobra.Command, args []string) error {
	inputs, err := loadInputs(cmd)
	if err != nil {
		return err
	}

	metric := rankMetric(cmd, inputs.cfg)
	grid := inputs.cfg.Sweep.Grid
	if len(grid) == 0 {
		return fmt.Errorf("config has no sweep.grid: nothing to search")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hcfg, _, err := buildHarnessConfig(ctx, cmd, inputs)
	if err != nil {
		return err
	}

	rows, err := harness.GridSearch(ctx, hcfg, grid)
	if err != nil {
		return fmt.Errorf("grid search failed: %w", err)
	}

	fmt.Printf("Grid search: %d result rows\n\n", len(rows))
	printSweepTable(rows, metric)

	best := harness.Best(rows, metric)
	if best != nil {
		fmt.Printf("\nOptimal parameters by %s:\n", metric)
		for _, name := range sortedKeys(best) {
			printKV(name, "%g", best[name])
		}
	}

	if dsn, _ := cmd.Flags().GetString("db"); dsn != "" {
		if err := saveSweep(ctx, dsn, rows); err != nil {
			log.Warn().Err(err).Msg("Failed to persist sweep rows")
		}
	}
	return nil
}

func saveSweep(ctx context.Context, dsn string, rows []harness.Row) error {
	store, err := persistence.Open(ctx, dsn)
	if err != nil {
		return err
	}
	defer store.Close()

	sweepID := uuid.New().String()
	if err := store.SaveSweepRows(ctx, sweepID, rows); err != nil {
		return err
	}
	log.Info().Str("sweep_id", sweepID).Int("rows", len(rows)).Msg("Sweep rows persisted")
	return nil
}

func printSweepTable(rows []harness.Row, metric string) {
	for i, row := range rows {
		fmt.Printf("%3d  ", i)
		for _, name := range sortedKeys(row.Params) {
			fmt.Printf("%s=%-8g ", name, row.Params[name])
		}
		fmt.Printf(" %s=%.4f  trades=%.0f  return=%.2f%%\n",
			metric, row.Metrics[metric], row.Metrics["total_trades"],
			row.Metrics["total_return"]*100)
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
