// Package analyze provides read-only reporting and slicing over one
// backtest result. Every method returns empty values on missing or
// mismatched inputs rather than raising, so reporting code composes
// safely.
package analyze

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/quantlab/stratrun/internal/metrics"
	"github.com/quantlab/stratrun/internal/sim"
)

// Analyzer wraps a single backtest result for post-hoc inspection
type Analyzer struct {
	result *sim.Result
}

// New creates an analyzer over one result. A nil result is tolerated;
// every method then returns its empty value.
func New(result *sim.Result) *Analyzer {
	return &Analyzer{result: result}
}

// Summary renders a human-readable performance overview
func (a *Analyzer) Summary() string {
	if a.result == nil {
		return ""
	}
	m := a.result.Metrics

	var b strings.Builder
	b.WriteString("Backtest Summary\n")
	b.WriteString("================\n")
	fmt.Fprintf(&b, "Final Equity:   %.2f\n", m["final_equity"])
	fmt.Fprintf(&b, "Total Return:   %.2f%%\n", m["total_return"]*100)
	fmt.Fprintf(&b, "Annual Return:  %.2f%%\n", m["annual_return"]*100)
	fmt.Fprintf(&b, "Sharpe:         %.3f\n", m["sharpe"])
	fmt.Fprintf(&b, "Sortino:        %.3f\n", m["sortino"])
	fmt.Fprintf(&b, "Calmar:         %.3f\n", m["calmar"])
	fmt.Fprintf(&b, "Max Drawdown:   %.2f%%\n", m["max_drawdown"]*100)
	fmt.Fprintf(&b, "Win Rate:       %.1f%%\n", m["win_rate"]*100)
	fmt.Fprintf(&b, "Profit Factor:  %.3f\n", m["profit_factor"])
	fmt.Fprintf(&b, "Closed Trades:  %.0f\n", m["total_trades"])
	return b.String()
}

// ClosedTrades returns the closed trades in chronological entry order
func (a *Analyzer) ClosedTrades() []sim.Trade {
	if a.result == nil {
		return nil
	}
	var closed []sim.Trade
	for _, t := range a.result.Trades {
		if t.Closed() {
			closed = append(closed, t)
		}
	}
	return closed
}

// TopTrades returns the n best closed trades by PnL, descending
func (a *Analyzer) TopTrades(n int) []sim.Trade {
	return a.rankedTrades(n, func(i, j sim.Trade) bool { return i.PnL > j.PnL })
}

// BottomTrades returns the n worst closed trades by PnL, ascending
func (a *Analyzer) BottomTrades(n int) []sim.Trade {
	return a.rankedTrades(n, func(i, j sim.Trade) bool { return i.PnL < j.PnL })
}

func (a *Analyzer) rankedTrades(n int, less func(i, j sim.Trade) bool) []sim.Trade {
	trades := a.ClosedTrades()
	sort.SliceStable(trades, func(i, j int) bool { return less(trades[i], trades[j]) })
	if n < len(trades) {
		trades = trades[:n]
	}
	return trades
}

// GroupStats aggregates closed trades sharing a key
type GroupStats struct {
	Key      string  `json:"key"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	TotalPnL float64 `json:"total_pnl"`
	AvgPnL   float64 `json:"avg_pnl"`
	WinRate  float64 `json:"win_rate"`
}

// GroupBySymbol aggregates closed trades per symbol
func (a *Analyzer) GroupBySymbol() []GroupStats {
	return a.groupBy(func(t sim.Trade) string { return t.Symbol })
}

// GroupBySignalType aggregates closed trades per signal type
func (a *Analyzer) GroupBySignalType() []GroupStats {
	return a.groupBy(func(t sim.Trade) string { return t.SignalType })
}

func (a *Analyzer) groupBy(key func(sim.Trade) string) []GroupStats {
	groups := make(map[string]*GroupStats)
	for _, t := range a.ClosedTrades() {
		k := key(t)
		g, ok := groups[k]
		if !ok {
			g = &GroupStats{Key: k}
			groups[k] = g
		}
		g.Trades++
		g.TotalPnL += t.PnL
		if t.PnL > 0 {
			g.Wins++
		}
	}

	out := make([]GroupStats, 0, len(groups))
	for _, g := range groups {
		g.AvgPnL = g.TotalPnL / float64(g.Trades)
		g.WinRate = float64(g.Wins) / float64(g.Trades)
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// PeriodReturn is one resampled return bucket
type PeriodReturn struct {
	Period string  `json:"period"`
	Return float64 `json:"return"`
}

// MonthlyReturns resamples the snapshot series into per-month compounded
// returns, keyed YYYY-MM in chronological order.
func (a *Analyzer) MonthlyReturns() []PeriodReturn {
	return a.resample("2006-01")
}

// AnnualReturns resamples the snapshot series into per-year compounded
// returns, keyed YYYY in chronological order.
func (a *Analyzer) AnnualReturns() []PeriodReturn {
	return a.resample("2006")
}

func (a *Analyzer) resample(layout string) []PeriodReturn {
	if a.result == nil || len(a.result.PortfolioHistory) == 0 {
		return nil
	}

	compounded := make(map[string]float64)
	var order []string
	for _, snap := range a.result.PortfolioHistory {
		period := snap.Date.Format(layout)
		if _, ok := compounded[period]; !ok {
			compounded[period] = 1.0
			order = append(order, period)
		}
		compounded[period] *= 1 + snap.DailyReturn
	}

	out := make([]PeriodReturn, 0, len(order))
	for _, period := range order {
		out = append(out, PeriodReturn{Period: period, Return: compounded[period] - 1})
	}
	return out
}

// Streaks holds consecutive win/loss run lengths over closed trades
type Streaks struct {
	MaxWins     int `json:"max_wins"`
	MaxLosses   int `json:"max_losses"`
	CurrentWins int `json:"current_wins"`
	CurrentLoss int `json:"current_losses"`
}

// WinLossStreaks scans closed trades chronologically and counts the
// longest and current consecutive win/loss runs.
func (a *Analyzer) WinLossStreaks() Streaks {
	var s Streaks
	wins, losses := 0, 0
	for _, t := range a.ClosedTrades() {
		if t.PnL > 0 {
			wins++
			losses = 0
		} else {
			losses++
			wins = 0
		}
		if wins > s.MaxWins {
			s.MaxWins = wins
		}
		if losses > s.MaxLosses {
			s.MaxLosses = losses
		}
	}
	s.CurrentWins = wins
	s.CurrentLoss = losses
	return s
}

// RiskStats holds distribution statistics over the daily return series
type RiskStats struct {
	VaR95    float64 `json:"var_95"`
	CVaR95   float64 `json:"cvar_95"`
	Skewness float64 `json:"skewness"`
	Kurtosis float64 `json:"kurtosis"` // excess kurtosis
}

// RiskProfile computes VaR, CVaR, skewness and kurtosis over the daily
// returns derived from the equity curve. Fewer than two equity points
// yield the zero value.
func (a *Analyzer) RiskProfile() RiskStats {
	if a.result == nil {
		return RiskStats{}
	}
	returns := metrics.DailyReturns(a.result.EquityCurve)
	if len(returns) == 0 {
		return RiskStats{}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * 0.05)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	var stats RiskStats
	stats.VaR95 = sorted[idx]
	stats.CVaR95 = metrics.Mean(sorted[:idx+1])

	mean := metrics.Mean(returns)
	std := metrics.StdDev(returns)
	if std < metrics.Epsilon {
		return stats
	}
	var m3, m4 float64
	for _, r := range returns {
		d := (r - mean) / std
		m3 += d * d * d
		m4 += d * d * d * d
	}
	n := float64(len(returns))
	stats.Skewness = m3 / n
	stats.Kurtosis = m4/n - 3
	return stats
}

// BenchmarkComparison holds relative performance against a benchmark
// return series
type BenchmarkComparison struct {
	InformationRatio float64 `json:"information_ratio"`
	ExcessReturn     float64 `json:"excess_return"`
	TrackingError    float64 `json:"tracking_error"`
	HitRate          float64 `json:"hit_rate"` // fraction of days beating the benchmark
}

// CompareBenchmark compares the run's daily returns against an externally
// supplied benchmark series of equal length. A length mismatch returns the
// empty comparison with a logged warning, not an error.
func (a *Analyzer) CompareBenchmark(benchmark []float64) BenchmarkComparison {
	if a.result == nil {
		return BenchmarkComparison{}
	}
	returns := metrics.DailyReturns(a.result.EquityCurve)
	if len(returns) == 0 || len(returns) != len(benchmark) {
		log.Warn().
			Int("returns", len(returns)).
			Int("benchmark", len(benchmark)).
			Msg("Benchmark series length mismatch, returning empty comparison")
		return BenchmarkComparison{}
	}

	diff := make([]float64, len(returns))
	beat := 0
	for i := range returns {
		diff[i] = returns[i] - benchmark[i]
		if diff[i] > 0 {
			beat++
		}
	}

	return BenchmarkComparison{
		InformationRatio: metrics.InformationRatio(returns, benchmark),
		ExcessReturn:     metrics.Mean(diff) * metrics.PeriodsPerYear,
		TrackingError:    metrics.StdDev(diff) * math.Sqrt(metrics.PeriodsPerYear),
		HitRate:          float64(beat) / float64(len(returns)),
	}
}
