package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 100000.0, cfg.InitialCapital)
	assert.Equal(t, "sharpe", cfg.Sweep.RankMetric)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
initial_capital: 50000
max_position_pct: 0.25
start: "2024-01-01"
end: "2024-06-30"
strategies:
  - name: mean_reversion
    params:
      lookback: 10
      z_threshold: 1.5
sweep:
  strategy: momentum
  rank_metric: sortino
  grid:
    lookback: [10, 20, 40]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50000.0, cfg.InitialCapital)
	assert.Equal(t, 0.25, cfg.MaxPositionPct)
	require.Len(t, cfg.Strategies, 1)
	assert.Equal(t, "mean_reversion", cfg.Strategies[0].Name)
	assert.Equal(t, "sortino", cfg.Sweep.RankMetric)
	assert.Len(t, cfg.Sweep.Grid["lookback"], 3)

	start, end, err := cfg.DateRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), end)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateFailsFast(t *testing.T) {
	cases := map[string]func(*Config){
		"zero capital":       func(c *Config) { c.InitialCapital = 0 },
		"oversized position": func(c *Config) { c.MaxPositionPct = 1.5 },
		"no strategies":      func(c *Config) { c.Strategies = nil },
		"unknown strategy": func(c *Config) {
			c.Strategies = []StrategyConfig{{Name: "no_such_strategy"}}
		},
		"bad strategy params": func(c *Config) {
			c.Strategies = []StrategyConfig{{Name: "momentum", Params: map[string]float64{"lookback": -5}}}
		},
		"unknown sweep strategy": func(c *Config) { c.Sweep.Strategy = "no_such_strategy" },
		"bad start date":         func(c *Config) { c.Start = "January 1st" },
		"inverted range": func(c *Config) {
			c.Start = "2024-06-30"
			c.End = "2024-01-01"
		},
	}

	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), "case %q must fail validation", name)
	}
}

func TestEngineConfigConversion(t *testing.T) {
	cfg := Default()
	cfg.CommissionPct = 0.002
	cfg.SlippageBps = 10

	engineCfg := cfg.EngineConfig()
	assert.Equal(t, cfg.InitialCapital, engineCfg.InitialCapital)
	assert.Equal(t, 0.002, engineCfg.Execution.CommissionPct)
	assert.Equal(t, 10.0, engineCfg.Execution.SlippageBps)
}

func TestBuildStrategiesPreservesOrder(t *testing.T) {
	cfg := Default()
	cfg.Strategies = []StrategyConfig{
		{Name: "mean_reversion"},
		{Name: "momentum"},
	}

	strategies, err := cfg.BuildStrategies()
	require.NoError(t, err)
	require.Len(t, strategies, 2)
	assert.Equal(t, "mean_reversion", strategies[0].Name())
	assert.Equal(t, "momentum", strategies[1].Name())
}
