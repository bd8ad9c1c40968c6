package sim

// ExecutionModel converts an execution price into a fill price and
// commission under slippage and commission rules. Slippage always worsens
// the fill for the trader: buys fill higher, sells fill lower.
type ExecutionModel struct {
	CommissionPct float64 `json:"commission_pct" yaml:"commission_pct"`
	SlippageBps   float64 `json:"slippage_bps" yaml:"slippage_bps"`
}

// BuyFill returns the slippage-adjusted fill price for a buy
func (m ExecutionModel) BuyFill(price float64) float64 {
	return price + m.SlippageCost(price)
}

// SellFill returns the slippage-adjusted fill price for a sell
func (m ExecutionModel) SellFill(price float64) float64 {
	return price - m.SlippageCost(price)
}

// SlippageCost returns the per-share price adjustment at the given price
func (m ExecutionModel) SlippageCost(price float64) float64 {
	return price * m.SlippageBps / 10000.0
}

// Commission returns the commission charged on a trade of the given value
func (m ExecutionModel) Commission(tradeValue float64) float64 {
	return m.CommissionPct * tradeValue
}
