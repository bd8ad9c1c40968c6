package sim

import (
	"time"

	"github.com/quantlab/stratrun/internal/data"
)

// Action is the position adjustment a signal requests
type Action string

const (
	ActionBuy      Action = "BUY"
	ActionSell     Action = "SELL"
	ActionHold     Action = "HOLD"
	ActionReduce   Action = "REDUCE"
	ActionIncrease Action = "INCREASE"
)

// Signal is an immutable instruction emitted by a strategy for one symbol
// on one simulated date. Signals are produced fresh each date and never
// persisted.
type Signal struct {
	Symbol            string             `json:"symbol"`
	Timestamp         time.Time          `json:"timestamp"`
	Action            Action             `json:"action"`
	SignalType        string             `json:"signal_type"`
	Strength          float64            `json:"strength"` // 0..1
	TargetPositionPct float64            `json:"target_position_pct"`
	Reason            string             `json:"reason"`
	Parameters        map[string]float64 `json:"parameters,omitempty"`
}

// SignalGenerator is the capability the engine requires from a strategy.
// Implementations must only read rows with timestamp <= date.
type SignalGenerator interface {
	Name() string
	GenerateSignals(prices *data.PriceFrame, technical *data.Frame,
		holdings []data.Holding, date time.Time) ([]Signal, error)
}

// Position is an open holding owned exclusively by one engine run.
// Exactly one open position exists per symbol at a time.
type Position struct {
	Qty        float64   `json:"qty"`
	EntryPrice float64   `json:"entry_price"`
	EntryDate  time.Time `json:"entry_date"`
	SignalType string    `json:"signal_type"`
	BarsHeld   int       `json:"bars_held"`
}

// Trade records one open-to-close position lifecycle. A trade is open
// while ExitDate is nil and is closed exactly once.
type Trade struct {
	TradeID    string     `json:"trade_id"`
	Symbol     string     `json:"symbol"`
	EntryDate  time.Time  `json:"entry_date"`
	EntryPrice float64    `json:"entry_price"`
	Quantity   float64    `json:"quantity"`
	EntryValue float64    `json:"entry_value"`
	Commission float64    `json:"commission"`
	Slippage   float64    `json:"slippage"`
	ExitDate   *time.Time `json:"exit_date,omitempty"`
	ExitPrice  float64    `json:"exit_price,omitempty"`
	ExitValue  float64    `json:"exit_value,omitempty"`
	PnL        float64    `json:"pnl,omitempty"`
	PnLPct     float64    `json:"pnl_pct,omitempty"`
	SignalType string     `json:"signal_type"`
	Reason     string     `json:"reason"`
	BarsHeld   int        `json:"bars_held"`
}

// Closed reports whether the trade lifecycle has completed
func (t *Trade) Closed() bool {
	return t.ExitDate != nil
}

// PortfolioSnapshot captures engine state after one simulated date.
// Invariant: TotalValue == Cash + GrossValue within floating tolerance.
type PortfolioSnapshot struct {
	Date             time.Time `json:"date"`
	Cash             float64   `json:"cash"`
	TotalValue       float64   `json:"total_value"`
	GrossValue       float64   `json:"gross_value"`
	NetExposure      float64   `json:"net_exposure"`
	NumPositions     int       `json:"num_positions"`
	MaxPositionSize  float64   `json:"max_position_size"`
	Concentration    float64   `json:"concentration"` // Herfindahl index over position weights
	Leverage         float64   `json:"leverage"`
	DailyReturn      float64   `json:"daily_return"`
	CumulativeReturn float64   `json:"cumulative_return"`
}

// Result is the terminal output of one engine run, immutable once returned
type Result struct {
	EquityCurve      []float64           `json:"equity_curve"`
	Trades           []Trade             `json:"trades"`
	PortfolioHistory []PortfolioSnapshot `json:"portfolio_history"`
	Metrics          map[string]float64  `json:"metrics"`
	Parameters       map[string]float64  `json:"parameters"`
}
