// Package metrics provides pure risk-adjusted performance calculations over
// equity curves, daily return series, and closed-trade PnL lists.
//
// All ratio math is guarded by Epsilon instead of raising on degenerate
// inputs: zero-variance return series and zero-loss trade lists produce 0.0
// ratios, never NaN or Inf. This is a numeric-stability policy, not an
// error path.
package metrics

import (
	"math"
)

// Epsilon guards every ratio denominator in this package
const Epsilon = 1e-6

// PeriodsPerYear is the annualization factor for daily bars
const PeriodsPerYear = 252

// Summary holds the terminal performance metrics of one backtest run
type Summary struct {
	TotalReturn   float64 `json:"total_return"`
	AnnualReturn  float64 `json:"annual_return"`
	Sharpe        float64 `json:"sharpe"`
	Sortino       float64 `json:"sortino"`
	MaxDrawdown   float64 `json:"max_drawdown"` // negative number
	Calmar        float64 `json:"calmar"`
	Volatility    float64 `json:"volatility"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`
	TotalTrades   float64 `json:"total_trades"`
	WinningTrades float64 `json:"winning_trades"`
	LosingTrades  float64 `json:"losing_trades"`
	AvgTradePnL   float64 `json:"avg_trade_pnl"`
	FinalEquity   float64 `json:"final_equity"`
}

// Map flattens the summary into the metrics dict carried by a Result
func (s Summary) Map() map[string]float64 {
	return map[string]float64{
		"total_return":   s.TotalReturn,
		"annual_return":  s.AnnualReturn,
		"sharpe":         s.Sharpe,
		"sortino":        s.Sortino,
		"max_drawdown":   s.MaxDrawdown,
		"calmar":         s.Calmar,
		"volatility":     s.Volatility,
		"win_rate":       s.WinRate,
		"profit_factor":  s.ProfitFactor,
		"total_trades":   s.TotalTrades,
		"winning_trades": s.WinningTrades,
		"losing_trades":  s.LosingTrades,
		"avg_trade_pnl":  s.AvgTradePnL,
		"final_equity":   s.FinalEquity,
	}
}

// Compute derives the full metrics summary from an equity curve and the
// PnLs of closed trades. An empty or single-point curve yields zero-valued
// metrics.
func Compute(equity []float64, closedPnLs []float64) Summary {
	s := Summary{}
	if len(equity) > 0 {
		s.FinalEquity = equity[len(equity)-1]
	}
	if len(equity) >= 2 && equity[0] != 0 {
		s.TotalReturn = (equity[len(equity)-1] - equity[0]) / equity[0]
	}

	returns := DailyReturns(equity)
	s.AnnualReturn = AnnualReturn(returns)
	s.Sharpe = Sharpe(returns, 0)
	s.Sortino = Sortino(returns, 0)
	s.MaxDrawdown = MaxDrawdown(equity)
	s.Calmar = Calmar(s.AnnualReturn, s.MaxDrawdown)
	s.Volatility = StdDev(returns) * math.Sqrt(PeriodsPerYear)

	s.TotalTrades = float64(len(closedPnLs))
	grossProfit, grossLoss := 0.0, 0.0
	for _, pnl := range closedPnLs {
		if pnl > 0 {
			s.WinningTrades++
			grossProfit += pnl
		} else {
			s.LosingTrades++
			grossLoss += -pnl
		}
	}
	if s.TotalTrades > 0 {
		s.WinRate = s.WinningTrades / s.TotalTrades
		s.AvgTradePnL = (grossProfit - grossLoss) / s.TotalTrades
	}
	s.ProfitFactor = ProfitFactor(grossProfit, grossLoss)

	return s
}

// DailyReturns converts an equity curve into simple period returns
func DailyReturns(equity []float64) []float64 {
	if len(equity) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
	}
	return returns
}

// AnnualReturn annualizes the mean daily return
func AnnualReturn(returns []float64) float64 {
	return Mean(returns) * PeriodsPerYear
}

// Sharpe computes the annualized Sharpe ratio over excess daily returns.
// A zero-volatility series yields 0, not NaN.
func Sharpe(returns []float64, riskFree float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	excess := make([]float64, len(returns))
	for i, r := range returns {
		excess[i] = r - riskFree
	}
	vol := StdDev(excess)
	if vol < Epsilon {
		return 0
	}
	return Mean(excess) * PeriodsPerYear / (vol*math.Sqrt(PeriodsPerYear) + Epsilon)
}

// Sortino computes the annualized Sortino ratio, penalizing only downside
// deviation below the target return.
func Sortino(returns []float64, target float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	var downside []float64
	excessSum := 0.0
	for _, r := range returns {
		excessSum += r - target
		if r < target {
			downside = append(downside, r-target)
		}
	}
	if len(downside) == 0 {
		return 0
	}
	sumSq := 0.0
	for _, d := range downside {
		sumSq += d * d
	}
	downsideDev := math.Sqrt(sumSq / float64(len(downside)))
	if downsideDev < Epsilon {
		return 0
	}
	mean := excessSum / float64(len(returns))
	return mean * PeriodsPerYear / (downsideDev*math.Sqrt(PeriodsPerYear) + Epsilon)
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a negative fraction.
func MaxDrawdown(equity []float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	peak := equity[0]
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// Calmar is annual return normalized by drawdown magnitude
func Calmar(annualReturn, maxDrawdown float64) float64 {
	return annualReturn / (math.Abs(maxDrawdown) + Epsilon)
}

// InformationRatio measures annualized excess return over a benchmark per
// unit of tracking error. Mismatched series lengths yield 0.
func InformationRatio(returns, benchmark []float64) float64 {
	if len(returns) == 0 || len(returns) != len(benchmark) {
		return 0
	}
	diff := make([]float64, len(returns))
	for i := range returns {
		diff[i] = returns[i] - benchmark[i]
	}
	trackingError := StdDev(diff)
	if trackingError < Epsilon {
		return 0
	}
	return Mean(diff) * PeriodsPerYear / (trackingError*math.Sqrt(PeriodsPerYear) + Epsilon)
}

// ProfitFactor is gross profit over gross loss, epsilon-guarded
func ProfitFactor(grossProfit, grossLoss float64) float64 {
	if grossProfit == 0 && grossLoss == 0 {
		return 0
	}
	return grossProfit / (grossLoss + Epsilon)
}

// Mean returns the arithmetic mean, 0 for an empty slice
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// StdDev returns the population standard deviation, 0 for fewer than two
// values
func StdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
