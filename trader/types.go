// Package trader wraps Binance USD-M perpetual futures (fapi) behind a
// minimal, deterministic interface: signed REST calls, idempotent protective
// order placement, and the account/position/order-book queries the execution
// engine and stream reconciler need.
package trader

import "time"

// Side is the exchange order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OppositeOf returns the closing/protective side for a position side.
func OppositeOf(positionSide Side) Side {
	if positionSide == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderResult records the outcome of a single exchange call attempted during
// an engine operation. The engine returns an ordered slice of these from
// every public operation, one per exchange call attempted.
type OrderResult struct {
	Step          string // "ENTRY", "SL", "TP", "CANCEL_ENTRY", "MARKET", "CLOSE", "MOVE_SL", ...
	Success       bool
	Symbol        string
	Side          Side
	Type          string // LIMIT, MARKET, STOP_MARKET, TAKE_PROFIT_MARKET
	OrderID       string
	ClientOrderID string
	Price         float64
	StopPrice     float64
	Quantity      float64
	ErrorMessage  string
}

// Failed builds a failed OrderResult for step with the given error.
func Failed(step string, err error) OrderResult {
	return OrderResult{Step: step, Success: false, ErrorMessage: err.Error()}
}

// Position is the exchange-reported position state for one symbol.
type Position struct {
	Symbol           string
	Quantity         float64 // signed: positive long, negative short
	EntryPrice       float64
	MarkPrice        float64
	UnrealizedProfit float64
	Leverage         int
	LiquidationPrice float64
}

// Direction reports the position direction, or "" if flat.
func (p Position) Direction() Side {
	switch {
	case p.Quantity > 0:
		return SideBuy
	case p.Quantity < 0:
		return SideSell
	default:
		return ""
	}
}

// Balance is the subset of account balance fields the engine consults.
type Balance struct {
	TotalWalletBalance    float64
	AvailableBalance      float64
	TotalUnrealizedProfit float64
}

// OpenOrder is a pending order on the exchange.
type OpenOrder struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          Side
	Type          string
	Price         float64
	StopPrice     float64
	Quantity      float64
	ReduceOnly    bool
	Status        string
}

// TradeRecord is a single fill from the exchange's account trade history.
type TradeRecord struct {
	TradeID      string
	Symbol       string
	Side         Side
	Price        float64
	Quantity     float64
	RealizedPnL  float64
	Commission   float64
	CommissionAsset string
	Time         time.Time
}
