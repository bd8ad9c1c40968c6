// Package strategy implements the signal generators the backtest engine
// replays. Strategies are stateless across calls except for their
// configured parameters and must only read rows at or before the date
// they are invoked for.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/sim"
)

// Strategy generates signals for one simulated date. It extends the
// engine's SignalGenerator contract with a parameters payload so the
// sweep harness can tag results.
type Strategy interface {
	Name() string
	Parameters() map[string]float64
	GenerateSignals(prices *data.PriceFrame, technical *data.Frame,
		holdings []data.Holding, date time.Time) ([]sim.Signal, error)
}

// factory builds a strategy from swept parameters
type factory func(params map[string]float64) (Strategy, error)

var registry = map[string]factory{
	"momentum":        newMomentumFromParams,
	"mean_reversion":  newMeanReversionFromParams,
	"sector_rotation": newSectorRotationFromParams,
	"portfolio_beta":  newPortfolioBetaFromParams,
}

// New constructs a strategy by registered name. Unknown names fail
// immediately so misconfigured sweeps abort before any simulation work.
func New(name string, params map[string]float64) (Strategy, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (available: %v)", name, Names())
	}
	return build(params)
}

// Register adds a strategy factory under name, replacing any existing
// registration. Call before any sweep starts; the registry is not
// synchronized for concurrent mutation.
func Register(name string, build func(params map[string]float64) (Strategy, error)) {
	registry[name] = build
}

// Names returns the registered strategy names in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func paramOr(params map[string]float64, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return fallback
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
