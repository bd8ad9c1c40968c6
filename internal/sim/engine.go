package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/quantlab/stratrun/internal/data"
	"github.com/quantlab/stratrun/internal/metrics"
)

// EngineConfig holds the knobs for one simulation run
type EngineConfig struct {
	InitialCapital float64        `json:"initial_capital" yaml:"initial_capital"`
	MaxPositionPct float64        `json:"max_position_pct" yaml:"max_position_pct"`
	Execution      ExecutionModel `json:"execution" yaml:"execution"`
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		InitialCapital: 100000,
		MaxPositionPct: 0.10,
		Execution: ExecutionModel{
			CommissionPct: 0.001,
			SlippageBps:   5,
		},
	}
}

// Engine replays a date range chronologically, invoking strategies and
// applying the execution model to its portfolio state. An Engine is
// single-use: all state is created in Run and discarded with the instance.
type Engine struct {
	config EngineConfig

	cash        float64
	positions   map[string]*Position
	trades      []Trade
	equityCurve []float64
	history     []PortfolioSnapshot
	used        bool
}

// NewEngine creates a backtest engine for a single run
func NewEngine(config EngineConfig) *Engine {
	return &Engine{
		config:    config,
		positions: make(map[string]*Position),
	}
}

// Run executes the simulation over every price date within [start, end].
// Dates are processed in strictly non-decreasing order; portfolio state is
// carried forward between dates. A date range with no overlapping price
// rows yields an empty but well-formed result.
func (e *Engine) Run(ctx context.Context, strategies []SignalGenerator,
	prices *data.PriceFrame, technical *data.Frame, holdings []data.Holding,
	start, end time.Time) (*Result, error) {

	if e.used {
		return nil, fmt.Errorf("engine instance already used: create a new engine per run")
	}
	e.used = true

	if e.config.InitialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %f", e.config.InitialCapital)
	}

	e.cash = e.config.InitialCapital
	e.equityCurve = []float64{e.config.InitialCapital}

	dates := prices.DatesBetween(start, end)
	if len(dates) == 0 {
		log.Warn().
			Str("start", start.Format("2006-01-02")).
			Str("end", end.Format("2006-01-02")).
			Msg("No price dates overlap requested range, returning empty result")
		return e.emptyResult(), nil
	}

	for _, date := range dates {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		e.step(strategies, prices, technical, holdings, date)
	}

	return e.finalize(), nil
}

// step runs the per-date state transition
func (e *Engine) step(strategies []SignalGenerator, prices *data.PriceFrame,
	technical *data.Frame, holdings []data.Holding, date time.Time) {

	pricesUpTo := prices.UpTo(date)
	technicalUpTo := technical.UpTo(date)

	for _, pos := range e.positions {
		pos.BarsHeld++
	}

	// Strategies run in supplied order; signals execute in emission order.
	// The ordering is load-bearing for reproducibility (cash exhaustion).
	for _, strat := range strategies {
		signals := e.collectSignals(strat, pricesUpTo, technicalUpTo, holdings, date)
		for _, sig := range signals {
			e.execute(sig, pricesUpTo, date)
		}
	}

	e.snapshot(pricesUpTo, date)
}

// collectSignals invokes one strategy, containing any failure to that
// strategy and date. A failing strategy contributes zero signals; the
// simulation continues.
func (e *Engine) collectSignals(strat SignalGenerator, prices *data.PriceFrame,
	technical *data.Frame, holdings []data.Holding, date time.Time) (signals []Signal) {

	defer func() {
		if r := recover(); r != nil {
			log.Warn().
				Str("strategy", strat.Name()).
				Str("date", date.Format("2006-01-02")).
				Interface("panic", r).
				Msg("Strategy panicked, skipping for this date")
			signals = nil
		}
	}()

	signals, err := strat.GenerateSignals(prices, technical, holdings, date)
	if err != nil {
		log.Warn().
			Err(err).
			Str("strategy", strat.Name()).
			Str("date", date.Format("2006-01-02")).
			Msg("Strategy failed, skipping for this date")
		return nil
	}
	return signals
}

// execute applies one signal against the most recent available price.
// Signals without a price row are dropped.
func (e *Engine) execute(sig Signal, prices *data.PriceFrame, date time.Time) {
	price, ok := prices.LatestClose(sig.Symbol, date)
	if !ok {
		log.Debug().
			Str("symbol", sig.Symbol).
			Str("action", string(sig.Action)).
			Str("date", date.Format("2006-01-02")).
			Msg("No price available for signal, dropping")
		return
	}

	switch sig.Action {
	case ActionBuy:
		e.executeBuy(sig, price, date)
	case ActionSell:
		e.executeSell(sig, price, date)
	case ActionReduce:
		e.executeReduce(sig, price, date)
	case ActionIncrease:
		e.executeIncrease(sig, price, date)
	case ActionHold:
		// No state change
	default:
		log.Debug().Str("action", string(sig.Action)).Msg("Unknown signal action, dropping")
	}
}

// executeBuy opens a new position at the configured maximum size
func (e *Engine) executeBuy(sig Signal, price float64, date time.Time) {
	e.openPosition(sig, price, date, e.config.MaxPositionPct)
}

// openPosition opens a position sized as a fraction of initial capital.
// Sizing off initial rather than current equity is a deliberate
// simplification that keeps position sizes comparable across the whole run.
func (e *Engine) openPosition(sig Signal, price float64, date time.Time, sizePct float64) {
	if _, exists := e.positions[sig.Symbol]; exists {
		log.Debug().Str("symbol", sig.Symbol).Msg("Position already open, skipping BUY")
		return
	}

	fillPrice := e.config.Execution.BuyFill(price)
	if fillPrice <= 0 || sizePct <= 0 {
		return
	}

	qty := e.config.InitialCapital * sizePct / fillPrice
	tradeValue := qty * fillPrice
	commission := e.config.Execution.Commission(tradeValue)

	if e.cash < tradeValue+commission {
		log.Debug().
			Str("symbol", sig.Symbol).
			Float64("required", tradeValue+commission).
			Float64("cash", e.cash).
			Msg("Insufficient cash, skipping BUY")
		return
	}

	e.cash -= tradeValue + commission
	e.positions[sig.Symbol] = &Position{
		Qty:        qty,
		EntryPrice: fillPrice,
		EntryDate:  date,
		SignalType: sig.SignalType,
	}

	e.trades = append(e.trades, Trade{
		TradeID:    uuid.New().String(),
		Symbol:     sig.Symbol,
		EntryDate:  date,
		EntryPrice: fillPrice,
		Quantity:   qty,
		EntryValue: tradeValue,
		Commission: commission,
		Slippage:   e.config.Execution.SlippageCost(price) * qty,
		SignalType: sig.SignalType,
		Reason:     sig.Reason,
	})
}

// executeSell closes the position and its matching open trade, realizing PnL
func (e *Engine) executeSell(sig Signal, price float64, date time.Time) {
	pos, exists := e.positions[sig.Symbol]
	if !exists {
		log.Debug().Str("symbol", sig.Symbol).Msg("No position to sell, dropping SELL")
		return
	}

	fillPrice := e.config.Execution.SellFill(price)
	exitValue := pos.Qty * fillPrice
	commission := e.config.Execution.Commission(exitValue)
	costBasis := pos.Qty * pos.EntryPrice
	pnl := exitValue - costBasis - commission

	e.cash += exitValue - commission

	// Close the most recent open trade for this symbol with a matching entry
	for i := len(e.trades) - 1; i >= 0; i-- {
		t := &e.trades[i]
		if t.Symbol != sig.Symbol || t.Closed() || !t.EntryDate.Equal(pos.EntryDate) {
			continue
		}
		exitDate := date
		t.ExitDate = &exitDate
		t.ExitPrice = fillPrice
		t.ExitValue = exitValue
		t.PnL = pnl
		if t.EntryValue != 0 {
			t.PnLPct = pnl / t.EntryValue
		}
		t.Commission += commission
		t.Slippage += e.config.Execution.SlippageCost(price) * pos.Qty
		t.BarsHeld = pos.BarsHeld
		break
	}

	delete(e.positions, sig.Symbol)
}

// executeReduce shrinks the position by (1 - target_position_pct) and
// realizes the proceeds. Unlike SELL, no trade row is closed: only cash
// and quantity mutate, so closed-trade stats stay whole round trips.
func (e *Engine) executeReduce(sig Signal, price float64, date time.Time) {
	pos, exists := e.positions[sig.Symbol]
	if !exists {
		log.Debug().Str("symbol", sig.Symbol).Msg("No position to reduce, dropping REDUCE")
		return
	}

	sellQty := pos.Qty * (1 - sig.TargetPositionPct)
	if sellQty <= 0 {
		return
	}

	fillPrice := e.config.Execution.SellFill(price)
	proceeds := sellQty * fillPrice
	commission := e.config.Execution.Commission(proceeds)

	e.cash += proceeds - commission
	pos.Qty -= sellQty

	if pos.Qty <= 0 {
		delete(e.positions, sig.Symbol)
	}
}

// executeIncrease tops the position up toward the target size. No new
// trade row is created; the existing position mutates in place.
func (e *Engine) executeIncrease(sig Signal, price float64, date time.Time) {
	pos, exists := e.positions[sig.Symbol]
	if !exists {
		// INCREASE with no position opens fresh at the signal's target size
		e.openPosition(sig, price, date, sig.TargetPositionPct)
		return
	}

	fillPrice := e.config.Execution.BuyFill(price)
	if fillPrice <= 0 {
		return
	}

	targetQty := e.config.InitialCapital * sig.TargetPositionPct / fillPrice
	addQty := targetQty - pos.Qty
	if addQty <= 0 {
		return
	}

	cost := addQty * fillPrice
	commission := e.config.Execution.Commission(cost)
	if e.cash < cost+commission {
		log.Debug().
			Str("symbol", sig.Symbol).
			Float64("required", cost+commission).
			Float64("cash", e.cash).
			Msg("Insufficient cash, skipping INCREASE")
		return
	}

	e.cash -= cost + commission
	pos.Qty = targetQty
}

// snapshot revalues the portfolio and records the per-date snapshot
func (e *Engine) snapshot(prices *data.PriceFrame, date time.Time) {
	grossValue := 0.0
	maxPositionValue := 0.0
	positionValues := make([]float64, 0, len(e.positions))

	for symbol, pos := range e.positions {
		price, ok := prices.LatestClose(symbol, date)
		if !ok {
			price = pos.EntryPrice
		}
		value := pos.Qty * price
		grossValue += value
		positionValues = append(positionValues, value)
		if value > maxPositionValue {
			maxPositionValue = value
		}
	}

	totalValue := e.cash + grossValue
	prevValue := e.equityCurve[len(e.equityCurve)-1]

	dailyReturn := 0.0
	if prevValue != 0 {
		dailyReturn = (totalValue - prevValue) / prevValue
	}
	e.equityCurve = append(e.equityCurve, totalValue)

	// Herfindahl index over position value weights
	concentration := 0.0
	if grossValue > 0 {
		for _, value := range positionValues {
			w := value / grossValue
			concentration += w * w
		}
	}

	cumulativeReturn := 0.0
	if e.config.InitialCapital != 0 {
		cumulativeReturn = (totalValue - e.config.InitialCapital) / e.config.InitialCapital
	}

	maxPositionSize := 0.0
	if totalValue > 0 {
		maxPositionSize = maxPositionValue / totalValue
	}

	e.history = append(e.history, PortfolioSnapshot{
		Date:             date,
		Cash:             e.cash,
		TotalValue:       totalValue,
		GrossValue:       grossValue,
		NetExposure:      grossValue / (totalValue + metrics.Epsilon),
		NumPositions:     len(e.positions),
		MaxPositionSize:  maxPositionSize,
		Concentration:    concentration,
		Leverage:         grossValue / (totalValue + metrics.Epsilon),
		DailyReturn:      dailyReturn,
		CumulativeReturn: cumulativeReturn,
	})
}

// finalize computes terminal metrics and assembles the immutable result
func (e *Engine) finalize() *Result {
	summary := metrics.Compute(e.equityCurve, closedPnLs(e.trades))

	return &Result{
		EquityCurve:      e.equityCurve,
		Trades:           e.trades,
		PortfolioHistory: e.history,
		Metrics:          summary.Map(),
		Parameters: map[string]float64{
			"initial_capital":  e.config.InitialCapital,
			"max_position_pct": e.config.MaxPositionPct,
			"commission_pct":   e.config.Execution.CommissionPct,
			"slippage_bps":     e.config.Execution.SlippageBps,
		},
	}
}

// emptyResult returns the zero-trade result used when the requested range
// has no price overlap
func (e *Engine) emptyResult() *Result {
	return &Result{
		EquityCurve:      []float64{e.config.InitialCapital},
		Trades:           []Trade{},
		PortfolioHistory: []PortfolioSnapshot{},
		Metrics:          metrics.Compute([]float64{e.config.InitialCapital}, nil).Map(),
		Parameters: map[string]float64{
			"initial_capital":  e.config.InitialCapital,
			"max_position_pct": e.config.MaxPositionPct,
			"commission_pct":   e.config.Execution.CommissionPct,
			"slippage_bps":     e.config.Execution.SlippageBps,
		},
	}
}

func closedPnLs(trades []Trade) []float64 {
	var pnls []float64
	for i := range trades {
		if trades[i].Closed() {
			pnls = append(pnls, trades[i].PnL)
		}
	}
	return pnls
}

// Cash exposes current cash for tests; meaningless after Run returns
func (e *Engine) Cash() float64 { return e.cash }
