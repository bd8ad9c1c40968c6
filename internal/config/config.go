// Package config loads the YAML run configuration shared by the backtest,
// sweep and walk-forward commands.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quantlab/stratrun/internal/sim"
	"github.com/quantlab/stratrun/internal/strategy"
)

// StrategyConfig selects one strategy by registered name with its
// parameters
type StrategyConfig struct {
	Name   string             `yaml:"name"`
	Params map[string]float64 `yaml:"params"`
}

// Config is the top-level run configuration
type Config struct {
	InitialCapital float64          `yaml:"initial_capital"`
	MaxPositionPct float64          `yaml:"max_position_pct"`
	CommissionPct  float64          `yaml:"commission_pct"`
	SlippageBps    float64          `yaml:"slippage_bps"`
	Start          string           `yaml:"start"` // YYYY-MM-DD
	End            string           `yaml:"end"`
	Strategies     []StrategyConfig `yaml:"strategies"`

	Sweep SweepConfig `yaml:"sweep"`
}

// SweepConfig configures the parameter sweep and walk-forward harness
type SweepConfig struct {
	Strategy      string               `yaml:"strategy"`
	Grid          map[string][]float64 `yaml:"grid"`
	RankMetric    string               `yaml:"rank_metric"`
	Workers       int                  `yaml:"workers"`
	PerRunTimeout time.Duration        `yaml:"per_run_timeout"`
	TrainDays     int                  `yaml:"train_days"`
	TestDays      int                  `yaml:"test_days"`
	RedisAddr     string               `yaml:"redis_addr"` // empty disables the result cache
	CacheTTL      time.Duration        `yaml:"cache_ttl"`
}

// Default returns the baseline configuration
func Default() *Config {
	return &Config{
		InitialCapital: 100000,
		MaxPositionPct: 0.10,
		CommissionPct:  0.001,
		SlippageBps:    5,
		Strategies: []StrategyConfig{
			{Name: "momentum", Params: map[string]float64{"lookback": 20, "threshold": 0.10}},
		},
		Sweep: SweepConfig{
			RankMetric: "sharpe",
			Workers:    4,
			TrainDays:  60,
			TestDays:   20,
			CacheTTL:   24 * time.Hour,
		},
	}
}

// Load reads and validates a YAML configuration file
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on malformed configuration before any simulation
// work begins.
func (c *Config) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive, got %f", c.InitialCapital)
	}
	if c.MaxPositionPct <= 0 || c.MaxPositionPct > 1 {
		return fmt.Errorf("max_position_pct must be in (0, 1], got %f", c.MaxPositionPct)
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("at least one strategy is required")
	}
	for _, sc := range c.Strategies {
		if _, err := strategy.New(sc.Name, sc.Params); err != nil {
			return err
		}
	}
	if c.Sweep.Strategy != "" {
		if _, err := strategy.New(c.Sweep.Strategy, nil); err != nil {
			return err
		}
	}
	if _, _, err := c.DateRange(); err != nil {
		return err
	}
	return nil
}

// DateRange parses the configured start/end dates. Zero times are
// returned for unset bounds.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Start != "" {
		start, err = time.Parse("2006-01-02", c.Start)
		if err != nil {
			return start, end, fmt.Errorf("bad start date %q: %w", c.Start, err)
		}
	}
	if c.End != "" {
		end, err = time.Parse("2006-01-02", c.End)
		if err != nil {
			return start, end, fmt.Errorf("bad end date %q: %w", c.End, err)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return start, end, fmt.Errorf("end date %s precedes start date %s", c.End, c.Start)
	}
	return start, end, nil
}

// EngineConfig converts the run configuration into engine knobs
func (c *Config) EngineConfig() sim.EngineConfig {
	return sim.EngineConfig{
		InitialCapital: c.InitialCapital,
		MaxPositionPct: c.MaxPositionPct,
		Execution: sim.ExecutionModel{
			CommissionPct: c.CommissionPct,
			SlippageBps:   c.SlippageBps,
		},
	}
}

// BuildStrategies constructs every configured strategy in declared order.
// Order is preserved because signal execution order affects outcomes.
func (c *Config) BuildStrategies() ([]sim.SignalGenerator, error) {
	generators := make([]sim.SignalGenerator, 0, len(c.Strategies))
	for _, sc := range c.Strategies {
		strat, err := strategy.New(sc.Name, sc.Params)
		if err != nil {
			return nil, err
		}
		generators = append(generators, strat)
	}
	return generators, nil
}
