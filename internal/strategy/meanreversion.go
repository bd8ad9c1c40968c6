package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/metrics"
	"github.com/quantlab/stratrun/internal/sim"
)

// MeanReversion trades z-score extremes against a rolling mean: deeply
// oversold symbols are bought, overbought ones sold. Windows with zero
// standard deviation are skipped.
type MeanReversion struct {
	Lookback   int
	ZThreshold float64
}

// NewMeanReversion creates a mean reversion strategy
func NewMeanReversion(lookback int, zThreshold float64) (*MeanReversion, error) {
	if lookback < 2 {
		return nil, fmt.Errorf("mean reversion lookback must be >= 2, got %d", lookback)
	}
	if zThreshold <= 0 {
		return nil, fmt.Errorf("mean reversion z threshold must be positive, got %f", zThreshold)
	}
	return &MeanReversion{Lookback: lookback, ZThreshold: zThreshold}, nil
}

func newMeanReversionFromParams(params map[string]float64) (Strategy, error) {
	return NewMeanReversion(
		int(paramOr(params, "lookback", 20)),
		paramOr(params, "z_threshold", 2.0),
	)
}

// Name implements Strategy
func (s *MeanReversion) Name() string { return "mean_reversion" }

// Parameters implements Strategy
func (s *MeanReversion) Parameters() map[string]float64 {
	return map[string]float64{
		"lookback":    float64(s.Lookback),
		"z_threshold": s.ZThreshold,
	}
}

// GenerateSignals implements Strategy
func (s *MeanReversion) GenerateSignals(prices *data.PriceFrame, technical *data.Frame,
	holdings []data.Holding, date time.Time) ([]sim.Signal, error) {

	var signals []sim.Signal
	for _, holding := range holdings {
		series := prices.CloseSeries(holding.Symbol, date)
		if len(series) < s.Lookback {
			continue
		}

		window := series[len(series)-s.Lookback:]
		mean := metrics.Mean(window)
		std := metrics.StdDev(window)
		if std == 0 {
			continue
		}

		current := series[len(series)-1]
		z := (current - mean) / std

		switch {
		case z < -s.ZThreshold:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionBuy,
				SignalType:        "mean_reversion_oversold",
				Strength:          clamp01(math.Abs(z) / (2 * s.ZThreshold)),
				TargetPositionPct: 1.0,
				Reason: fmt.Sprintf("z-score %.2f below -%.2f over %d bars",
					z, s.ZThreshold, s.Lookback),
				Parameters: s.Parameters(),
			})
		case z > s.ZThreshold:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionSell,
				SignalType:        "mean_reversion_overbought",
				Strength:          clamp01(z / (2 * s.ZThreshold)),
				TargetPositionPct: 0.5,
				Reason: fmt.Sprintf("z-score %.2f above %.2f over %d bars",
					z, s.ZThreshold, s.Lookback),
				Parameters: s.Parameters(),
			})
		}
	}
	return signals, nil
}
