package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/metrics"
	"github.com/quantlab/stratrun/internal/sim"
)

// PortfolioBeta steers per-symbol exposure toward a target beta. Each
// symbol's beta is estimated from the covariance of its returns against an
// equal-weight proxy of all holdings' returns over the lookback window.
// Symbols more than 0.2 above target are reduced, more than 0.2 below are
// increased.
type PortfolioBeta struct {
	Lookback   int
	TargetBeta float64
}

const betaBand = 0.2

// NewPortfolioBeta creates a portfolio beta strategy
func NewPortfolioBeta(lookback int, targetBeta float64) (*PortfolioBeta, error) {
	if lookback < 2 {
		return nil, fmt.Errorf("portfolio beta lookback must be >= 2, got %d", lookback)
	}
	return &PortfolioBeta{Lookback: lookback, TargetBeta: targetBeta}, nil
}

func newPortfolioBetaFromParams(params map[string]float64) (Strategy, error) {
	return NewPortfolioBeta(
		int(paramOr(params, "lookback", 60)),
		paramOr(params, "target_beta", 1.0),
	)
}

// Name implements Strategy
func (s *PortfolioBeta) Name() string { return "portfolio_beta" }

// Parameters implements Strategy
func (s *PortfolioBeta) Parameters() map[string]float64 {
	return map[string]float64{
		"lookback":    float64(s.Lookback),
		"target_beta": s.TargetBeta,
	}
}

// GenerateSignals implements Strategy
func (s *PortfolioBeta) GenerateSignals(prices *data.PriceFrame, technical *data.Frame,
	holdings []data.Holding, date time.Time) ([]sim.Signal, error) {

	returns := make(map[string][]float64, len(holdings))
	for _, holding := range holdings {
		series := prices.CloseSeries(holding.Symbol, date)
		if len(series) <= s.Lookback {
			continue
		}
		window := series[len(series)-1-s.Lookback:]
		returns[holding.Symbol] = metrics.DailyReturns(window)
	}
	if len(returns) < 2 {
		return nil, nil
	}

	// Equal-weight proxy return series across all symbols with data
	proxy := make([]float64, s.Lookback)
	for _, rets := range returns {
		for i := range proxy {
			proxy[i] += rets[i] / float64(len(returns))
		}
	}

	proxyVar := variance(proxy)
	if proxyVar < metrics.Epsilon {
		return nil, nil
	}

	var signals []sim.Signal
	for _, holding := range holdings {
		rets, ok := returns[holding.Symbol]
		if !ok {
			continue
		}
		beta := covariance(rets, proxy) / proxyVar

		switch {
		case beta > s.TargetBeta+betaBand:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionReduce,
				SignalType:        "beta_high",
				Strength:          clamp01(math.Abs(beta - s.TargetBeta)),
				TargetPositionPct: 0.5,
				Reason: fmt.Sprintf("beta %.2f above target %.2f+%.1f band",
					beta, s.TargetBeta, betaBand),
				Parameters: s.Parameters(),
			})
		case beta < s.TargetBeta-betaBand:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionIncrease,
				SignalType:        "beta_low",
				Strength:          clamp01(math.Abs(beta - s.TargetBeta)),
				TargetPositionPct: 1.0,
				Reason: fmt.Sprintf("beta %.2f below target %.2f-%.1f band",
					beta, s.TargetBeta, betaBand),
				Parameters: s.Parameters(),
			})
		}
	}
	return signals, nil
}

func covariance(x, y []float64) float64 {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return 0
	}
	meanX := metrics.Mean(x[:n])
	meanY := metrics.Mean(y[:n])
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += (x[i] - meanX) * (y[i] - meanY)
	}
	return sum / float64(n)
}

func variance(values []float64) float64 {
	return covariance(values, values)
}
