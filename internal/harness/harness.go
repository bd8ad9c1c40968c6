// Package harness drives many independent backtest engine runs: grid
// search over a parameter space and walk-forward validation over rolling
// time windows. Runs share only read-only input frames; each run gets a
// fresh engine and strategy instance, which makes the layer embarrassingly
// parallel.
package harness

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/sim"
	"github.com/quantlab/stratrun/internal/strategy"
	"github.com/quantlab/stratrun/internal/telemetry"
)

// Config holds everything a harness needs to spawn runs
type Config struct {
	Engine       sim.EngineConfig
	StrategyName string
	BaseParams   map[string]float64

	Prices    *data.PriceFrame
	Technical *data.Frame
	Holdings  []data.Holding
	Start     time.Time
	End       time.Time

	Workers       int           // worker pool size, default 4
	PerRunTimeout time.Duration // bound on a misbehaving strategy, default 5m

	Cache       ResultCache   // optional result memoization
	SubmitLimit *rate.Limiter // optional run submission throttle
	Telemetry   *telemetry.Collector
	OnProgress  func(ProgressEvent) // optional, called per completed run
}

// ProgressEvent describes one completed (or failed) run within a sweep
type ProgressEvent struct {
	RunID     string    `json:"run_id"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Status    string    `json:"status"` // ok, failed, cached
	Timestamp time.Time `json:"timestamp"`
}

// Validate fails fast on configuration that would waste simulation work
func (c *Config) Validate() error {
	if c.Prices == nil || c.Prices.Len() == 0 {
		return fmt.Errorf("harness requires a non-empty price frame")
	}
	if _, err := strategy.New(c.StrategyName, c.BaseParams); err != nil {
		return fmt.Errorf("invalid harness strategy: %w", err)
	}
	return nil
}

func (c *Config) workers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

func (c *Config) perRunTimeout() time.Duration {
	if c.PerRunTimeout <= 0 {
		return 5 * time.Minute
	}
	return c.PerRunTimeout
}

// runSpec describes one independent run submitted to the worker pool
type runSpec struct {
	id     string
	index  int
	params map[string]float64
	start  time.Time
	end    time.Time
}

// runOutcome pairs a run spec with its terminal state
type runOutcome struct {
	spec   runSpec
	result *sim.Result
	cached bool
	err    error
}

func newRunSpec(index int, params map[string]float64, start, end time.Time) runSpec {
	return runSpec{
		id:     uuid.New().String(),
		index:  index,
		params: params,
		start:  start,
		end:    end,
	}
}

// runAll executes the given specs over a worker pool, preserving spec
// order in the returned outcomes. Progress events fire as each run
// completes so monitoring surfaces stay live during long sweeps.
// Cancellation stops submitting new runs; in-flight runs finish and the
// partial gather is discarded by returning ctx.Err().
func runAll(ctx context.Context, cfg *Config, specs []runSpec) ([]runOutcome, error) {
	jobs := make(chan runSpec)
	outcomes := make([]runOutcome, len(specs))

	// The mutex serializes callback invocations and orders the counter,
	// since OnProgress consumers are not required to be concurrency-safe.
	var progressMu sync.Mutex
	var completed int
	notify := func(outcome runOutcome) {
		if cfg.OnProgress == nil {
			return
		}
		status := "ok"
		if outcome.err != nil {
			status = "failed"
		} else if outcome.cached {
			status = "cached"
		}
		progressMu.Lock()
		completed++
		cfg.OnProgress(ProgressEvent{
			RunID:     outcome.spec.id,
			Completed: completed,
			Total:     len(specs),
			Status:    status,
			Timestamp: time.Now(),
		})
		progressMu.Unlock()
	}

	var wg sync.WaitGroup
	for w := 0; w < cfg.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for spec := range jobs {
				outcome := runOne(ctx, cfg, spec)
				outcomes[spec.index] = outcome
				notify(outcome)
			}
		}()
	}

	var submitErr error
submit:
	for _, spec := range specs {
		if cfg.SubmitLimit != nil {
			if err := cfg.SubmitLimit.Wait(ctx); err != nil {
				submitErr = err
				break submit
			}
		}
		select {
		case <-ctx.Done():
			submitErr = ctx.Err()
			break submit
		case jobs <- spec:
		}
	}
	close(jobs)
	wg.Wait()

	if submitErr != nil {
		log.Warn().Err(submitErr).Msg("Sweep cancelled, discarding in-flight results")
		return nil, submitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// runOne executes a single independent backtest, consulting the result
// cache first when one is configured.
func runOne(ctx context.Context, cfg *Config, spec runSpec) runOutcome {
	outcome := runOutcome{spec: spec}

	key := cacheKey(cfg.StrategyName, spec.params, spec.start, spec.end)
	if cfg.Cache != nil {
		if result, ok := cacheGet(ctx, cfg, key); ok {
			outcome.result = result
			outcome.cached = true
			return outcome
		}
	}

	strat, err := strategy.New(cfg.StrategyName, spec.params)
	if err != nil {
		outcome.err = err
		return outcome
	}

	runCtx, cancel := context.WithTimeout(ctx, cfg.perRunTimeout())
	defer cancel()

	if cfg.Telemetry != nil {
		cfg.Telemetry.ActiveRuns.Inc()
		defer cfg.Telemetry.ActiveRuns.Dec()
	}

	started := time.Now()

	// The engine checks the context only between dates, so a strategy
	// blocked inside a single GenerateSignals call would never observe
	// cancellation. Running it on its own goroutine lets the timeout
	// reclaim the worker; an abandoned run is discarded when it returns.
	type runReturn struct {
		result *sim.Result
		err    error
	}
	done := make(chan runReturn, 1)
	go func() {
		engine := sim.NewEngine(cfg.Engine)
		result, err := engine.Run(runCtx, []sim.SignalGenerator{strat},
			cfg.Prices, cfg.Technical, cfg.Holdings, spec.start, spec.end)
		done <- runReturn{result: result, err: err}
	}()

	var result *sim.Result
	select {
	case ret := <-done:
		result, err = ret.result, ret.err
	case <-runCtx.Done():
		err = fmt.Errorf("run abandoned: %w", runCtx.Err())
	}
	elapsed := time.Since(started)

	if cfg.Telemetry != nil {
		cfg.Telemetry.RunDuration.Observe(elapsed.Seconds())
		status := "ok"
		if err != nil {
			status = "failed"
		}
		cfg.Telemetry.RunsTotal.WithLabelValues(status).Inc()
	}

	if err != nil {
		log.Warn().
			Err(err).
			Str("run_id", spec.id).
			Interface("params", spec.params).
			Msg("Backtest run failed, omitting from results")
		outcome.err = err
		return outcome
	}

	outcome.result = result
	if cfg.Cache != nil {
		cacheSet(ctx, cfg, key, result)
	}
	return outcome
}

func cacheGet(ctx context.Context, cfg *Config, key string) (*sim.Result, bool) {
	result, ok, err := cfg.Cache.Get(ctx, key)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Result cache get failed")
		if cfg.Telemetry != nil {
			cfg.Telemetry.CacheMisses.Inc()
		}
		return nil, false
	}
	if cfg.Telemetry != nil {
		if ok {
			cfg.Telemetry.CacheHits.Inc()
		} else {
			cfg.Telemetry.CacheMisses.Inc()
		}
	}
	return result, ok
}

func cacheSet(ctx context.Context, cfg *Config, key string, result *sim.Result) {
	if err := cfg.Cache.Set(ctx, key, result); err != nil {
		log.Debug().Err(err).Str("key", key).Msg("Result cache set failed")
	}
}
