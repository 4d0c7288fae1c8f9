package engine

import (
	"fmt"

	"gorm.io/gorm"

	"tradebridge/bridgeerr"
	"tradebridge/lock"
	"tradebridge/logger"
	"tradebridge/notify"
	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

// resolveSymbolForClose implements the CLOSE/MOVE_SL symbol-fallback
// procedure (§4.1.5): when the signal's own symbol carries no exchange
// position, substitute the tenant's sole OPEN trade's symbol.
func (e *Engine) resolveSymbolForClose(tenantID string, client *trader.Client, symbol string) (string, *trader.OrderResult) {
	position, err := client.GetPosition(symbol)
	if err != nil {
		return "", rejected("PRECHECK", err)
	}
	if position.Quantity != 0 {
		return symbol, nil
	}

	open, err := e.store.Trade().FindAllOpenTrades(nil, tenantID)
	if err != nil {
		return "", rejected("PRECHECK", bridgeerr.Wrap(bridgeerr.PersistenceFailed, "find open trades", err))
	}
	if len(open) != 1 {
		return "", rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "no unambiguous open trade to resolve symbol for "+symbol))
	}

	e.sink.Notify(tenantID, "Symbol resolved by fallback",
		fmt.Sprintf("%s carries no position; substituting the sole open trade on %s", symbol, open[0].Symbol),
		notify.SeverityInfo)
	return open[0].Symbol, nil
}

func snapshotPrice(orders []trader.OpenOrder, orderType string) (float64, bool) {
	for _, o := range orders {
		if o.Type == orderType {
			return o.StopPrice, true
		}
	}
	return 0, false
}

func (e *Engine) clientOrReject(tenantID string, sig *signal.TradeSignal) (*trader.Client, *trader.OrderResult) {
	client := e.traders.Get(tenantID)
	if client == nil {
		return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.ExchangeQueryFailed, "no exchange credentials bound for tenant"))
	}
	return client, nil
}

// ExecuteClose handles CLOSE, full (closeRatio == 1) or partial.
func (e *Engine) ExecuteClose(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
	sig.Normalize()
	if err := sig.Validate(); err != nil {
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{trader.Failed("PRECHECK", err)}
	}

	client, rej := e.clientOrReject(tenantID, sig)
	if rej != nil {
		e.audit(tenantID, sig, "REJECTED", rej.ErrorMessage, "")
		return []trader.OrderResult{*rej}
	}

	symbol, rej := e.resolveSymbolForClose(tenantID, client, sig.Symbol)
	if rej != nil {
		e.audit(tenantID, sig, "REJECTED", rej.ErrorMessage, "")
		return []trader.OrderResult{*rej}
	}

	results, _ := lock.WithLock(e.locks, symbol, func() ([]trader.OrderResult, error) {
		return e.executeCloseLocked(tenantID, sig, client, symbol), nil
	})
	return results
}

func (e *Engine) executeCloseLocked(tenantID string, sig *signal.TradeSignal, client *trader.Client, symbol string) []trader.OrderResult {
	position, err := client.GetPosition(symbol)
	if err != nil {
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{*rejected("PRECHECK", err)}
	}
	if position.Quantity == 0 {
		rejErr := bridgeerr.New(bridgeerr.RiskRejected, "no open position on "+symbol)
		e.audit(tenantID, sig, "REJECTED", rejErr.Error(), "")
		return []trader.OrderResult{trader.Failed("PRECHECK", rejErr)}
	}

	trade, err := e.store.Trade().FindOpenTrade(nil, tenantID, symbol)
	if err != nil || trade == nil {
		msg := "no open trade record for " + symbol
		if err != nil {
			msg = err.Error()
		}
		e.audit(tenantID, sig, "REJECTED", msg, "")
		return []trader.OrderResult{trader.Failed("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, msg))}
	}

	absQty := abs(position.Quantity)
	closeQty := absQty * sig.CloseRatio
	isPartial := sig.CloseRatio < 1

	var preSnapshot []trader.OpenOrder
	if isPartial {
		preSnapshot, _ = client.GetOpenOrders(symbol)
	}

	if err := client.CancelAllOrders(symbol); err != nil {
		logger.Warnf("cancel all orders on %s before close: %v", symbol, err)
	}

	markPrice, err := client.GetMarketPrice(symbol)
	if err != nil {
		e.audit(tenantID, sig, "FAILED", err.Error(), trade.ID)
		return []trader.OrderResult{trader.Failed("CLOSE", err)}
	}
	closingSide := trader.SideSell
	limitPrice := markPrice * 0.999
	if position.Direction() == trader.SideSell {
		closingSide = trader.SideBuy
		limitPrice = markPrice * 1.001
	}

	closeResult, closeErr := client.PlaceLimitClose(symbol, closingSide, closeQty, limitPrice)
	results := []trader.OrderResult{closeResult}
	if closeErr != nil {
		e.audit(tenantID, sig, "FAILED", closeErr.Error(), trade.ID)
		return results
	}

	if !isPartial {
		e.finishFullClose(tenantID, sig, trade, closeResult)
		return results
	}

	side := trader.SideBuy
	if trade.Side == "SHORT" {
		side = trader.SideSell
	}
	extra := e.finishPartialClose(tenantID, sig, client, symbol, trade, side, closeQty, closeResult, preSnapshot, trade.EntryPrice)
	return append(results, extra...)
}

func (e *Engine) finishFullClose(tenantID string, sig *signal.TradeSignal, trade *store.Trade, closeResult trader.OrderResult) {
	// The REST fill response does not carry a commission figure; this is a
	// conservative taker-rate estimate. The stream reconciler only books
	// STOP_MARKET/TAKE_PROFIT_MARKET fills, so this estimate is what is stored.
	exitCommission := closeResult.Quantity * closeResult.Price * 0.0004

	if err := e.store.Transaction(func(tx *gorm.DB) error {
		if _, _, err := e.store.Trade().FullClose(tx, trade.ID, closeResult.OrderID, "CLOSE", closeResult.Price, closeResult.Quantity, exitCommission); err != nil {
			return err
		}
		return e.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "CLOSE_PLACED", ExchangeOrderID: closeResult.OrderID,
			Price: closeResult.Price, Quantity: closeResult.Quantity, Success: true,
		})
	}); err != nil {
		logger.Warnf("persist close for %s: %v", sig.Symbol, err)
	}

	e.audit(tenantID, sig, "EXECUTED", "", trade.ID)
}

// finishPartialClose books the partial close then re-places protective
// orders on the remainder, following §4.1.5's priority chains: SL from an
// explicit newStopLoss, else the pre-cancel snapshot, else entry-price
// cost-protection, else none (a warning notification is sent — the remainder is left
// naked rather than force-flattened, per the recorded open-question
// decision). TP from an explicit newTakeProfit, else the pre-cancel
// snapshot, else none.
func (e *Engine) finishPartialClose(tenantID string, sig *signal.TradeSignal, client *trader.Client, symbol string, trade *store.Trade, side trader.Side, closeQty float64, closeResult trader.OrderResult, preSnapshot []trader.OpenOrder, entryPrice float64) []trader.OrderResult {
	var results []trader.OrderResult

	commission := closeQty * closeResult.Price * 0.0004
	if err := e.store.Transaction(func(tx *gorm.DB) error {
		if err := e.store.Trade().PartialClose(tx, trade.ID, closeQty, commission); err != nil {
			return err
		}
		return e.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "PARTIAL_CLOSE", ExchangeOrderID: closeResult.OrderID,
			Price: closeResult.Price, Quantity: closeQty, Success: true,
		})
	}); err != nil {
		logger.Warnf("persist partial close for %s: %v", symbol, err)
	}

	var slPrice float64
	var haveSL bool
	switch {
	case sig.NewStopLoss != nil:
		slPrice, haveSL = *sig.NewStopLoss, true
	default:
		if p, ok := snapshotPrice(preSnapshot, "STOP_MARKET"); ok {
			slPrice, haveSL = p, true
		} else if entryPrice > 0 {
			slPrice, haveSL = entryPrice, true
		}
	}

	if !haveSL {
		e.sink.Notify(tenantID, "Partial close left remainder unprotected",
			fmt.Sprintf("%s: no stop-loss source available after partial close of %.8f", symbol, closeQty), notify.SeverityWarning)
	} else {
		slResult, slErr := client.PlaceProtectiveOrder(symbol, side, "SL", slPrice)
		results = append(results, slResult)
		if slErr != nil {
			e.sink.Notify(tenantID, "Protective stop lost after partial close",
				fmt.Sprintf("%s: unable to re-place stop-loss: %v", symbol, slErr), notify.SeverityCritical)
		}
	}

	var tpPrice float64
	var haveTP bool
	switch {
	case sig.NewTakeProfit != nil:
		tpPrice, haveTP = *sig.NewTakeProfit, true
	default:
		if p, ok := snapshotPrice(preSnapshot, "TAKE_PROFIT_MARKET"); ok {
			tpPrice, haveTP = p, true
		}
	}
	if haveTP {
		tpResult, tpErr := client.PlaceProtectiveOrder(symbol, side, "TP", tpPrice)
		results = append(results, tpResult)
		if tpErr != nil {
			e.sink.Notify(tenantID, "Take-profit re-placement failed", fmt.Sprintf("%s: %v", symbol, tpErr), notify.SeverityWarning)
		}
	}

	e.audit(tenantID, sig, "EXECUTED", "", trade.ID)
	return results
}

// ExecuteMoveSL relocates the protective stop-loss and/or take-profit on an
// already-open position without touching the position itself (§4.1.5).
func (e *Engine) ExecuteMoveSL(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
	sig.Normalize()
	if err := sig.Validate(); err != nil {
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{trader.Failed("PRECHECK", err)}
	}

	client, rej := e.clientOrReject(tenantID, sig)
	if rej != nil {
		e.audit(tenantID, sig, "REJECTED", rej.ErrorMessage, "")
		return []trader.OrderResult{*rej}
	}

	symbol, rej := e.resolveSymbolForClose(tenantID, client, sig.Symbol)
	if rej != nil {
		e.audit(tenantID, sig, "REJECTED", rej.ErrorMessage, "")
		return []trader.OrderResult{*rej}
	}

	results, _ := lock.WithLock(e.locks, symbol, func() ([]trader.OrderResult, error) {
		return e.executeMoveSLLocked(tenantID, sig, client, symbol), nil
	})
	return results
}

func (e *Engine) executeMoveSLLocked(tenantID string, sig *signal.TradeSignal, client *trader.Client, symbol string) []trader.OrderResult {
	position, err := client.GetPosition(symbol)
	if err != nil || position.Quantity == 0 {
		msg := "no open position on " + symbol
		if err != nil {
			msg = err.Error()
		}
		e.audit(tenantID, sig, "REJECTED", msg, "")
		return []trader.OrderResult{trader.Failed("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, msg))}
	}

	trade, err := e.store.Trade().FindOpenTrade(nil, tenantID, symbol)
	if err != nil || trade == nil {
		msg := "no open trade record for " + symbol
		if err != nil {
			msg = err.Error()
		}
		e.audit(tenantID, sig, "REJECTED", msg, "")
		return []trader.OrderResult{trader.Failed("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, msg))}
	}

	if err := client.CancelAllOrders(symbol); err != nil {
		logger.Warnf("cancel all orders on %s before move-sl: %v", symbol, err)
	}

	side := trader.SideBuy
	if trade.Side == "SHORT" {
		side = trader.SideSell
	}

	var results []trader.OrderResult
	oldStopLoss := trade.StopLoss

	newStopLoss := trade.StopLoss
	haveSL := trade.StopLoss != 0
	if sig.NewStopLoss != nil {
		newStopLoss, haveSL = *sig.NewStopLoss, true
	}

	if haveSL {
		slResult, slErr := client.PlaceProtectiveOrder(symbol, side, "SL", newStopLoss)
		results = append(results, slResult)
		if slErr == nil {
			if txErr := e.store.Transaction(func(tx *gorm.DB) error {
				if err := e.store.Trade().MoveStopLoss(tx, trade.ID, newStopLoss); err != nil {
					return err
				}
				return e.store.Event().Append(tx, &store.TradeEvent{
					TradeID: trade.ID, EventType: "MOVE_SL", ExchangeOrderID: slResult.OrderID,
					Price: newStopLoss, Success: true,
					Detail: fmt.Sprintf(`{"old":%v,"new":%v}`, oldStopLoss, newStopLoss),
				})
			}); txErr != nil {
				logger.Warnf("persist move-sl for %s: %v", symbol, txErr)
			}
		} else {
			e.sink.Notify(tenantID, "Stop-loss relocation failed", fmt.Sprintf("%s: %v", symbol, slErr), notify.SeverityCritical)
		}
	}

	newTakeProfit, haveTP := resolveNewTakeProfit(sig)
	if haveTP {
		tpResult, tpErr := client.PlaceProtectiveOrder(symbol, side, "TP", newTakeProfit)
		results = append(results, tpResult)
		if tpErr != nil {
			e.sink.Notify(tenantID, "Take-profit placement failed on MOVE_SL", fmt.Sprintf("%s: %v", symbol, tpErr), notify.SeverityWarning)
		}
	}

	if !haveSL && !haveTP {
		rejErr := bridgeerr.New(bridgeerr.RiskRejected, "neither stop-loss nor take-profit could be resolved")
		e.audit(tenantID, sig, "REJECTED", rejErr.Error(), trade.ID)
		return append(results, trader.Failed("MOVE_SL", rejErr))
	}

	e.audit(tenantID, sig, "EXECUTED", "", trade.ID)
	return results
}

func resolveNewTakeProfit(sig *signal.TradeSignal) (float64, bool) {
	if sig.NewTakeProfit != nil {
		return *sig.NewTakeProfit, true
	}
	if len(sig.TakeProfits) > 0 {
		return sig.TakeProfits[0], true
	}
	return 0, false
}
