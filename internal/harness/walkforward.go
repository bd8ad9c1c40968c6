package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Window is one walk-forward partition. The train window is bookkeeping
// only: the strategy configuration is fixed across windows and nothing is
// refit on the train range. Each test window is backtested independently.
type Window struct {
	Index      int       `json:"window"`
	TrainStart time.Time `json:"train_start"`
	TrainEnd   time.Time `json:"train_end"`
	TestStart  time.Time `json:"test_start"`
	TestEnd    time.Time `json:"test_end"`
}

// WindowResult pairs a window with the metrics of its test-range run
type WindowResult struct {
	Window  Window             `json:"window"`
	Metrics map[string]float64 `json:"metrics"`
}

// Partition splits [start, end] into non-overlapping (train, test) window
// pairs advancing by testDays. Window indices start at 0.
func Partition(start, end time.Time, trainDays, testDays int) ([]Window, error) {
	if trainDays <= 0 || testDays <= 0 {
		return nil, fmt.Errorf("train and test days must be positive, got train=%d test=%d",
			trainDays, testDays)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("walk-forward range is empty: start=%s end=%s",
			start.Format("2006-01-02"), end.Format("2006-01-02"))
	}

	var windows []Window
	trainStart := start
	for i := 0; ; i++ {
		trainEnd := trainStart.AddDate(0, 0, trainDays)
		testEnd := trainEnd.AddDate(0, 0, testDays)
		if testEnd.After(end) {
			break
		}
		windows = append(windows, Window{
			Index:      i,
			TrainStart: trainStart,
			TrainEnd:   trainEnd,
			TestStart:  trainEnd,
			TestEnd:    testEnd,
		})
		trainStart = trainStart.AddDate(0, 0, testDays)
	}
	return windows, nil
}

// WalkForward backtests a fixed strategy configuration over successive
// out-of-sample test windows. Window runs are independent and execute on
// the shared worker pool; a failed window is logged and omitted.
func WalkForward(ctx context.Context, cfg *Config, trainDays, testDays int) ([]WindowResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	windows, err := Partition(cfg.Start, cfg.End, trainDays, testDays)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		log.Warn().
			Int("train_days", trainDays).
			Int("test_days", testDays).
			Msg("Date range too short for any walk-forward window")
		return nil, nil
	}

	log.Info().
		Str("strategy", cfg.StrategyName).
		Int("windows", len(windows)).
		Int("train_days", trainDays).
		Int("test_days", testDays).
		Msg("Starting walk-forward validation")

	specs := make([]runSpec, len(windows))
	for i, w := range windows {
		specs[i] = newRunSpec(i, copyParams(cfg.BaseParams), w.TestStart, w.TestEnd)
	}

	outcomes, err := runAll(ctx, cfg, specs)
	if err != nil {
		return nil, err
	}

	var results []WindowResult
	for i, outcome := range outcomes {
		if outcome.err != nil {
			continue
		}
		results = append(results, WindowResult{
			Window:  windows[i],
			Metrics: outcome.result.Metrics,
		})
	}

	log.Info().Int("windows_completed", len(results)).Msg("Walk-forward validation complete")
	return results, nil
}
