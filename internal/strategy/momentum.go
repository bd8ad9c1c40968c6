package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/sim"
)

// Momentum buys symbols whose trailing return over the lookback window
// exceeds the threshold and sells those falling below its negative.
// Symbols with fewer than lookback bars are skipped silently.
type Momentum struct {
	Lookback  int
	Threshold float64
}

// NewMomentum creates a momentum strategy
func NewMomentum(lookback int, threshold float64) (*Momentum, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("momentum lookback must be >= 1, got %d", lookback)
	}
	if threshold <= 0 {
		return nil, fmt.Errorf("momentum threshold must be positive, got %f", threshold)
	}
	return &Momentum{Lookback: lookback, Threshold: threshold}, nil
}

func newMomentumFromParams(params map[string]float64) (Strategy, error) {
	return NewMomentum(
		int(paramOr(params, "lookback", 20)),
		paramOr(params, "threshold", 0.10),
	)
}

// Name implements Strategy
func (s *Momentum) Name() string { return "momentum" }

// Parameters implements Strategy
func (s *Momentum) Parameters() map[string]float64 {
	return map[string]float64{
		"lookback":  float64(s.Lookback),
		"threshold": s.Threshold,
	}
}

// GenerateSignals implements Strategy
func (s *Momentum) GenerateSignals(prices *data.PriceFrame, technical *data.Frame,
	holdings []data.Holding, date time.Time) ([]sim.Signal, error) {

	var signals []sim.Signal
	for _, holding := range holdings {
		series := prices.CloseSeries(holding.Symbol, date)
		if len(series) <= s.Lookback {
			continue
		}

		current := series[len(series)-1]
		past := series[len(series)-1-s.Lookback]
		if past == 0 {
			continue
		}
		momentum := (current - past) / past

		switch {
		case momentum > s.Threshold:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionBuy,
				SignalType:        "momentum_strong",
				Strength:          clamp01(momentum / (2 * s.Threshold)),
				TargetPositionPct: 1.0,
				Reason: fmt.Sprintf("momentum %.2f%% over %d bars above %.2f%% threshold",
					momentum*100, s.Lookback, s.Threshold*100),
				Parameters: s.Parameters(),
			})
		case momentum < -s.Threshold:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionSell,
				SignalType:        "momentum_weak",
				Strength:          clamp01(math.Abs(momentum) / (2 * s.Threshold)),
				TargetPositionPct: 0.5,
				Reason: fmt.Sprintf("momentum %.2f%% over %d bars below -%.2f%% threshold",
					momentum*100, s.Lookback, s.Threshold*100),
				Parameters: s.Parameters(),
			})
		}
	}
	return signals, nil
}
