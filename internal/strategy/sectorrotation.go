package strategy

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/metrics"
	"github.com/quantlab/stratrun/internal/sim"
)

// SectorRotation ranks sectors by their mean lookback return, reduces every
// holding in the worst sector and increases every holding in the best.
// It requires at least two sectors with computable returns.
type SectorRotation struct {
	Lookback int
}

// NewSectorRotation creates a sector rotation strategy
func NewSectorRotation(lookback int) (*SectorRotation, error) {
	if lookback < 1 {
		return nil, fmt.Errorf("sector rotation lookback must be >= 1, got %d", lookback)
	}
	return &SectorRotation{Lookback: lookback}, nil
}

func newSectorRotationFromParams(params map[string]float64) (Strategy, error) {
	return NewSectorRotation(int(paramOr(params, "lookback", 20)))
}

// Name implements Strategy
func (s *SectorRotation) Name() string { return "sector_rotation" }

// Parameters implements Strategy
func (s *SectorRotation) Parameters() map[string]float64 {
	return map[string]float64{"lookback": float64(s.Lookback)}
}

// GenerateSignals implements Strategy
func (s *SectorRotation) GenerateSignals(prices *data.PriceFrame, technical *data.Frame,
	holdings []data.Holding, date time.Time) ([]sim.Signal, error) {

	sectorReturns := make(map[string][]float64)
	for _, holding := range holdings {
		if holding.Sector == "" {
			continue
		}
		ret, ok := s.lookbackReturn(prices, holding.Symbol, date)
		if !ok {
			continue
		}
		sectorReturns[holding.Sector] = append(sectorReturns[holding.Sector], ret)
	}
	if len(sectorReturns) < 2 {
		return nil, nil
	}

	sectors := make([]string, 0, len(sectorReturns))
	for sector := range sectorReturns {
		sectors = append(sectors, sector)
	}
	// Sorted iteration keeps best/worst selection deterministic on ties
	sort.Strings(sectors)

	best, worst := sectors[0], sectors[0]
	bestRet := metrics.Mean(sectorReturns[best])
	worstRet := bestRet
	for _, sector := range sectors[1:] {
		mean := metrics.Mean(sectorReturns[sector])
		if mean > bestRet {
			best, bestRet = sector, mean
		}
		if mean < worstRet {
			worst, worstRet = sector, mean
		}
	}
	if best == worst {
		return nil, nil
	}

	strength := clamp01(math.Abs(bestRet-worstRet) / 0.10)

	var signals []sim.Signal
	for _, holding := range holdings {
		switch holding.Sector {
		case worst:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionReduce,
				SignalType:        "sector_rotation",
				Strength:          strength,
				TargetPositionPct: 0.25,
				Reason: fmt.Sprintf("sector %s worst performer (%.2f%% over %d bars)",
					worst, worstRet*100, s.Lookback),
				Parameters: s.Parameters(),
			})
		case best:
			signals = append(signals, sim.Signal{
				Symbol:            holding.Symbol,
				Timestamp:         date,
				Action:            sim.ActionIncrease,
				SignalType:        "sector_rotation",
				Strength:          strength,
				TargetPositionPct: 1.0,
				Reason: fmt.Sprintf("sector %s best performer (%.2f%% over %d bars)",
					best, bestRet*100, s.Lookback),
				Parameters: s.Parameters(),
			})
		}
	}
	return signals, nil
}

func (s *SectorRotation) lookbackReturn(prices *data.PriceFrame, symbol string, date time.Time) (float64, bool) {
	series := prices.CloseSeries(symbol, date)
	if len(series) <= s.Lookback {
		return 0, false
	}
	past := series[len(series)-1-s.Lookback]
	if past == 0 {
		return 0, false
	}
	return (series[len(series)-1] - past) / past, true
}
