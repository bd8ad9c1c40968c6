package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// Row is one grid-search result: the swept parameter values plus every
// metric the run produced.
type Row struct {
	Params  map[string]float64 `json:"params"`
	Metrics map[string]float64 `json:"metrics"`
	Cached  bool               `json:"cached,omitempty"`
}

// GridSearch runs one independent backtest per combination in the
// cartesian product of grid values. Combinations are generated in
// deterministic order (parameter names sorted, values in supplied order)
// so reruns are reproducible. A failed combination is logged and omitted;
// the remaining combinations still run.
func GridSearch(ctx context.Context, cfg *Config, grid map[string][]float64) ([]Row, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("grid search requires at least one parameter axis")
	}

	combos := expandGrid(cfg.BaseParams, grid)
	log.Info().
		Str("strategy", cfg.StrategyName).
		Int("combinations", len(combos)).
		Int("workers", cfg.workers()).
		Msg("Starting grid search")

	specs := make([]runSpec, len(combos))
	for i, params := range combos {
		specs[i] = newRunSpec(i, params, cfg.Start, cfg.End)
	}

	outcomes, err := runAll(ctx, cfg, specs)
	if err != nil {
		return nil, err
	}

	var rows []Row
	for _, outcome := range outcomes {
		if outcome.err != nil {
			continue
		}
		rows = append(rows, Row{
			Params:  outcome.spec.params,
			Metrics: outcome.result.Metrics,
			Cached:  outcome.cached,
		})
	}

	log.Info().Int("rows", len(rows)).Int("failed", len(combos)-len(rows)).Msg("Grid search complete")
	return rows, nil
}

// Best returns the swept parameter values of the row maximizing the given
// metric, ties broken by encounter order. Metric columns are excluded from
// the returned map. An empty table yields nil.
func Best(rows []Row, metric string) map[string]float64 {
	bestIdx := -1
	bestVal := 0.0
	for i, row := range rows {
		v, ok := row.Metrics[metric]
		if !ok {
			continue
		}
		if bestIdx == -1 || v > bestVal {
			bestIdx = i
			bestVal = v
		}
	}
	if bestIdx == -1 {
		return nil
	}

	out := make(map[string]float64, len(rows[bestIdx].Params))
	for k, v := range rows[bestIdx].Params {
		out[k] = v
	}
	return out
}

// expandGrid produces the cartesian product of grid values layered over
// the base parameters. Axes iterate in sorted name order.
func expandGrid(base map[string]float64, grid map[string][]float64) []map[string]float64 {
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names)

	combos := []map[string]float64{copyParams(base)}
	for _, name := range names {
		values := grid[name]
		next := make([]map[string]float64, 0, len(combos)*len(values))
		for _, combo := range combos {
			for _, v := range values {
				expanded := copyParams(combo)
				expanded[name] = v
				next = append(next, expanded)
			}
		}
		combos = next
	}
	return combos
}

func copyParams(params map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
