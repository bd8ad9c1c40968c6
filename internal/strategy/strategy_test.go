package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/sim"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func dailyBars(symbol string, closes []float64) []data.Bar {
	bars := make([]data.Bar, len(closes))
	for i, c := range closes {
		bars[i] = data.Bar{
			Timestamp: testStart.AddDate(0, 0, i),
			Symbol:    symbol,
			Close:     c,
		}
	}
	return bars
}

func lastDay(closes []float64) time.Time {
	return testStart.AddDate(0, 0, len(closes)-1)
}

// ramp builds a linear close series from first to last over n bars
func ramp(first, last float64, n int) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = first + (last-first)*float64(i)/float64(n-1)
	}
	return closes
}

func TestRegistryUnknownName(t *testing.T) {
	_, err := New("no_such_strategy", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown strategy")
}

func TestRegistryDefaults(t *testing.T) {
	for _, name := range Names() {
		s, err := New(name, nil)
		require.NoError(t, err, "strategy %s must build with default params", name)
		assert.Equal(t, name, s.Name())
		assert.NotEmpty(t, s.Parameters())
	}
}

// renamed wraps a strategy under a different registry name
type renamed struct {
	Strategy
	name string
}

func (r renamed) Name() string { return r.name }

func TestRegisterExtendsRegistry(t *testing.T) {
	Register("custom_momentum", func(params map[string]float64) (Strategy, error) {
		inner, err := NewMomentum(int(paramOr(params, "lookback", 5)), 0.10)
		if err != nil {
			return nil, err
		}
		return renamed{Strategy: inner, name: "custom_momentum"}, nil
	})

	s, err := New("custom_momentum", map[string]float64{"lookback": 7})
	require.NoError(t, err)
	assert.Equal(t, "custom_momentum", s.Name())
	assert.Equal(t, 7.0, s.Parameters()["lookback"])
	assert.Contains(t, Names(), "custom_momentum")
}

func TestRegistryRejectsBadParams(t *testing.T) {
	_, err := New("momentum", map[string]float64{"lookback": 0})
	assert.Error(t, err)

	_, err = New("mean_reversion", map[string]float64{"z_threshold": -1})
	assert.Error(t, err)
}

func TestMomentumStrengthScaling(t *testing.T) {
	// 15% trailing return against a 10% threshold: strength is
	// 0.15 / (2 * 0.10) = 0.75
	closes := ramp(100, 115, 21)
	prices := data.NewPriceFrame(dailyBars("AAPL", closes))
	holdings := []data.Holding{{Symbol: "AAPL"}}

	s, err := NewMomentum(20, 0.10)
	require.NoError(t, err)

	signals, err := s.GenerateSignals(prices, nil, holdings, lastDay(closes))
	require.NoError(t, err)
	require.Len(t, signals, 1)

	sig := signals[0]
	assert.Equal(t, sim.ActionBuy, sig.Action)
	assert.Equal(t, "momentum_strong", sig.SignalType)
	assert.InDelta(t, 0.75, sig.Strength, 1e-9)
	assert.Equal(t, 1.0, sig.TargetPositionPct)
}

func TestMomentumSellOnWeakness(t *testing.T) {
	closes := ramp(100, 85, 21)
	prices := data.NewPriceFrame(dailyBars("AAPL", closes))

	s, _ := NewMomentum(20, 0.10)
	signals, err := s.GenerateSignals(prices, nil, []data.Holding{{Symbol: "AAPL"}}, lastDay(closes))
	require.NoError(t, err)
	require.Len(t, signals, 1)

	assert.Equal(t, sim.ActionSell, signals[0].Action)
	assert.Equal(t, "momentum_weak", signals[0].SignalType)
	assert.Equal(t, 0.5, signals[0].TargetPositionPct)
}

func TestMomentumSkipsShortHistory(t *testing.T) {
	// Exactly lookback bars is not enough for a lookback-return
	closes := ramp(100, 120, 20)
	prices := data.NewPriceFrame(dailyBars("AAPL", closes))

	s, _ := NewMomentum(20, 0.10)
	signals, err := s.GenerateSignals(prices, nil, []data.Holding{{Symbol: "AAPL"}}, lastDay(closes))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMeanReversionZeroStdSkipped(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 100}
	prices := data.NewPriceFrame(dailyBars("AAPL", closes))

	s, _ := NewMeanReversion(5, 1.5)
	signals, err := s.GenerateSignals(prices, nil, []data.Holding{{Symbol: "AAPL"}}, lastDay(closes))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestMeanReversionOversoldBuy(t *testing.T) {
	// Window {100,100,100,100,80}: mean 96, std 8, z = -2
	closes := []float64{100, 100, 100, 100, 80}
	prices := data.NewPriceFrame(dailyBars("AAPL", closes))

	s, _ := NewMeanReversion(5, 1.5)
	signals, err := s.GenerateSignals(prices, nil, []data.Holding{{Symbol: "AAPL"}}, lastDay(closes))
	require.NoError(t, err)
	require.Len(t, signals, 1)

	assert.Equal(t, sim.ActionBuy, signals[0].Action)
	assert.Equal(t, "mean_reversion_oversold", signals[0].SignalType)
	assert.InDelta(t, 2.0/3.0, signals[0].Strength, 1e-9)
}

func TestMeanReversionOverboughtSell(t *testing.T) {
	closes := []float64{100, 100, 100, 100, 120}
	prices := data.NewPriceFrame(dailyBars("AAPL", closes))

	s, _ := NewMeanReversion(5, 1.5)
	signals, err := s.GenerateSignals(prices, nil, []data.Holding{{Symbol: "AAPL"}}, lastDay(closes))
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Equal(t, sim.ActionSell, signals[0].Action)
}

func TestSectorRotationBestAndWorst(t *testing.T) {
	prices := data.NewPriceFrame(append(
		dailyBars("AAPL", []float64{100, 110}),
		dailyBars("XOM", []float64{100, 95})...,
	))
	holdings := []data.Holding{
		{Symbol: "AAPL", Sector: "tech"},
		{Symbol: "XOM", Sector: "energy"},
	}

	s, _ := NewSectorRotation(1)
	signals, err := s.GenerateSignals(prices, nil, holdings, testStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, signals, 2)

	byAction := map[sim.Action]sim.Signal{}
	for _, sig := range signals {
		byAction[sig.Action] = sig
	}
	assert.Equal(t, "AAPL", byAction[sim.ActionIncrease].Symbol, "best sector gets increased")
	assert.Equal(t, "XOM", byAction[sim.ActionReduce].Symbol, "worst sector gets reduced")
	assert.Equal(t, "sector_rotation", byAction[sim.ActionReduce].SignalType)
}

func TestSectorRotationNeedsTwoSectors(t *testing.T) {
	prices := data.NewPriceFrame(dailyBars("AAPL", []float64{100, 110}))
	holdings := []data.Holding{{Symbol: "AAPL", Sector: "tech"}}

	s, _ := NewSectorRotation(1)
	signals, err := s.GenerateSignals(prices, nil, holdings, testStart.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestPortfolioBetaBands(t *testing.T) {
	// High-vol symbol sits well above beta 1.2, low-vol well below 0.8
	prices := data.NewPriceFrame(append(
		dailyBars("HIGH", []float64{100, 110, 99}),
		dailyBars("LOW", []float64{100, 101, 99.99})...,
	))
	holdings := []data.Holding{
		{Symbol: "HIGH", Sector: "tech"},
		{Symbol: "LOW", Sector: "staples"},
	}

	s, err := NewPortfolioBeta(2, 1.0)
	require.NoError(t, err)

	signals, err := s.GenerateSignals(prices, nil, holdings, testStart.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, signals, 2)

	bySymbol := map[string]sim.Signal{}
	for _, sig := range signals {
		bySymbol[sig.Symbol] = sig
	}
	assert.Equal(t, sim.ActionReduce, bySymbol["HIGH"].Action)
	assert.Equal(t, "beta_high", bySymbol["HIGH"].SignalType)
	assert.Equal(t, sim.ActionIncrease, bySymbol["LOW"].Action)
	assert.Equal(t, "beta_low", bySymbol["LOW"].SignalType)
}

func TestPortfolioBetaNeedsTwoSeries(t *testing.T) {
	prices := data.NewPriceFrame(dailyBars("HIGH", []float64{100, 110, 99}))
	s, _ := NewPortfolioBeta(2, 1.0)

	signals, err := s.GenerateSignals(prices, nil,
		[]data.Holding{{Symbol: "HIGH"}}, testStart.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Empty(t, signals)
}
