package engine

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"tradebridge/lock"
	"tradebridge/logger"
	"tradebridge/notify"
	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

// ExecuteEntry handles both fresh ENTRY and DCA signals, distinguished by
// sig.IsDca, under the per-symbol lock for the operation's full duration.
func (e *Engine) ExecuteEntry(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
	sig.Normalize()
	if err := sig.Validate(); err != nil {
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{trader.Failed("PRECHECK", err)}
	}

	results, _ := lock.WithLock(e.locks, sig.Symbol, func() ([]trader.OrderResult, error) {
		return e.executeEntryLocked(tenantID, sig), nil
	})
	return results
}

func (e *Engine) executeEntryLocked(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
	ctx, rej := e.preTradeCheck(tenantID, sig)
	if rej != nil {
		e.audit(tenantID, sig, "REJECTED", rej.ErrorMessage, "")
		return []trader.OrderResult{*rej}
	}

	side := ctx.side
	if side == signal.SideNone {
		side = signal.SideLong
	}
	exchangeSide := trader.SideBuy
	if side == signal.SideShort {
		exchangeSide = trader.SideSell
	}

	qty, err := computeQuantity(ctx.cfg, ctx.balance.AvailableBalance, sig.EntryPriceLow, sig.StopLoss, sig.IsDca)
	if err != nil {
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{trader.Failed("SIZING", err)}
	}

	if sig.IsDca {
		return e.placeDca(tenantID, sig, ctx, exchangeSide, qty)
	}
	return e.placeEntry(tenantID, sig, ctx, exchangeSide, qty)
}

// placeEntry implements §4.1.3: limit entry, protective stop-loss,
// optional take-profit, with the §4.1.9 fail-safe chain on stop-loss
// placement failure.
func (e *Engine) placeEntry(tenantID string, sig *signal.TradeSignal, ctx *preTradeContext, side trader.Side, qty float64) []trader.OrderResult {
	var results []trader.OrderResult

	entryResult, err := ctx.client.PlaceLimitEntry(sig.Symbol, side, qty, sig.EntryPriceLow)
	results = append(results, entryResult)
	if err != nil {
		e.audit(tenantID, sig, "FAILED", err.Error(), "")
		return results
	}

	slResult, slErr := ctx.client.PlaceProtectiveOrder(sig.Symbol, side, "SL", sig.StopLoss)
	results = append(results, slResult)
	if slErr != nil {
		results = append(results, e.failSafe(tenantID, sig, ctx, side, qty, entryResult.OrderID)...)
		return results
	}

	if len(sig.TakeProfits) > 0 {
		tpResult, tpErr := ctx.client.PlaceProtectiveOrder(sig.Symbol, side, "TP", sig.TakeProfits[0])
		results = append(results, tpResult)
		if tpErr != nil {
			e.sink.Notify(tenantID, "Take-profit placement failed", fmt.Sprintf("%s: %v", sig.Symbol, tpErr), notify.SeverityWarning)
		}
	}

	tradeSide := "LONG"
	if side == trader.SideSell {
		tradeSide = "SHORT"
	}

	trade := &store.Trade{
		ID:            uuid.New().String(),
		TenantID:      tenantID,
		Symbol:        sig.Symbol,
		Side:          tradeSide,
		EntryPrice:    sig.EntryPriceLow,
		EntryQuantity: qty,
		EntryOrderID:  entryResult.OrderID,
		StopLoss:      sig.StopLoss,
		TakeProfits:   joinFloats(sig.TakeProfits),
		Leverage:      ctx.cfg.FixedLeverage,
		RiskAmount:    ctx.cfg.RiskPercent * ctx.balance.AvailableBalance,
		SignalHash:    sig.Hash(),
		Source:        "signal",
	}

	if err := e.store.Transaction(func(tx *gorm.DB) error {
		if err := e.store.Trade().Create(tx, trade); err != nil {
			return err
		}
		if err := e.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "ENTRY_PLACED", ExchangeOrderID: entryResult.OrderID,
			Side: string(side), Price: sig.EntryPriceLow, Quantity: qty, Success: true,
		}); err != nil {
			return err
		}
		return e.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "SL_PLACED", ExchangeOrderID: slResult.OrderID,
			Price: sig.StopLoss, Quantity: qty, Success: true,
		})
	}); err != nil {
		logger.Warnf("persist entry for %s: %v", sig.Symbol, err)
	}

	e.audit(tenantID, sig, "EXECUTED", "", trade.ID)
	return results
}

// placeDca implements §4.1.4's DCA merge: place the additional entry,
// cancel the resting protective legs (not the position), re-place SL/TP as
// close-position orders that cover the merged size, then average the entry
// price in persistence.
func (e *Engine) placeDca(tenantID string, sig *signal.TradeSignal, ctx *preTradeContext, side trader.Side, qty float64) []trader.OrderResult {
	var results []trader.OrderResult
	trade := ctx.existing

	entryResult, err := ctx.client.PlaceLimitEntry(sig.Symbol, side, qty, sig.EntryPriceLow)
	results = append(results, entryResult)
	if err != nil {
		e.audit(tenantID, sig, "FAILED", err.Error(), trade.ID)
		return results
	}

	if err := ctx.client.CancelStopLossOrders(sig.Symbol); err != nil {
		logger.Warnf("cancel existing stop-loss before DCA on %s: %v", sig.Symbol, err)
	}
	if err := ctx.client.CancelTakeProfitOrders(sig.Symbol); err != nil {
		logger.Warnf("cancel existing take-profit before DCA on %s: %v", sig.Symbol, err)
	}

	effectiveOldQty := trade.EntryQuantity
	if trade.TotalClosedQuantity > 0 {
		effectiveOldQty = trade.RemainingQuantity
	}
	combinedQty := effectiveOldQty + qty

	newStopLoss := sig.StopLoss
	if sig.NewStopLoss != nil {
		newStopLoss = *sig.NewStopLoss
	}

	slResult, slErr := ctx.client.PlaceProtectiveOrder(sig.Symbol, side, "SL", newStopLoss)
	results = append(results, slResult)
	if slErr != nil {
		e.sink.Notify(tenantID, "DCA stop-loss placement failed",
			fmt.Sprintf("%s: combined position of %.8f is now unprotected: %v", sig.Symbol, combinedQty, slErr),
			notify.SeverityCritical)
	}

	if len(sig.TakeProfits) > 0 {
		tpResult, tpErr := ctx.client.PlaceProtectiveOrder(sig.Symbol, side, "TP", sig.TakeProfits[0])
		results = append(results, tpResult)
		if tpErr != nil {
			e.sink.Notify(tenantID, "DCA take-profit placement failed", fmt.Sprintf("%s: %v", sig.Symbol, tpErr), notify.SeverityWarning)
		}
	}

	riskContribution := ctx.cfg.RiskPercent * ctx.cfg.DcaRiskMultiplier * ctx.balance.AvailableBalance

	if err := e.store.Transaction(func(tx *gorm.DB) error {
		if _, err := e.store.Trade().ApplyDCA(tx, trade.ID, sig.EntryPriceLow, qty, newStopLoss, riskContribution, 0); err != nil {
			return err
		}
		if err := e.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "DCA_ENTRY", ExchangeOrderID: entryResult.OrderID,
			Side: string(side), Price: sig.EntryPriceLow, Quantity: qty, Success: true,
		}); err != nil {
			return err
		}
		return e.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "SL_PLACED", ExchangeOrderID: slResult.OrderID,
			Price: newStopLoss, Quantity: combinedQty, Success: slErr == nil,
		})
	}); err != nil {
		logger.Warnf("persist DCA for %s: %v", sig.Symbol, err)
	}

	e.audit(tenantID, sig, "EXECUTED", "", trade.ID)
	return results
}

// failSafe implements §4.1.9's compensation chain for an SL-placement
// failure: cancel the just-placed entry; if that also fails, flatten via a
// reduce-only market order; if that fails too, escalate as critical.
func (e *Engine) failSafe(tenantID string, sig *signal.TradeSignal, ctx *preTradeContext, side trader.Side, qty float64, entryOrderID string) []trader.OrderResult {
	var results []trader.OrderResult

	cancelErr := ctx.client.CancelOrder(sig.Symbol, entryOrderID)
	if cancelErr == nil {
		results = append(results, trader.OrderResult{Step: "CANCEL_ENTRY", Success: true, Symbol: sig.Symbol, OrderID: entryOrderID})
		e.audit(tenantID, sig, "FAILED", "stop-loss placement failed; entry cancelled", "")
		return results
	}
	results = append(results, trader.Failed("CANCEL_ENTRY", cancelErr))

	closeSide := trader.OppositeOf(side)
	marketResult, marketErr := ctx.client.PlaceMarketOrder(sig.Symbol, closeSide, qty, true)
	results = append(results, marketResult)

	if marketErr != nil {
		e.sink.Notify(tenantID, "Fail-safe compensation failed",
			fmt.Sprintf("%s: stop-loss placement failed, entry cancel failed, and the market-close flatten also failed — position may be unprotected: %v", sig.Symbol, marketErr),
			notify.SeverityCritical)
		e.audit(tenantID, sig, "FAILED", "fail-safe compensation failed; manual intervention required", "")
		return results
	}

	e.sink.Notify(tenantID, "Fail-safe flatten engaged",
		fmt.Sprintf("%s: stop-loss placement failed and the entry could not be cancelled; position was flattened via market order", sig.Symbol),
		notify.SeverityCritical)
	e.audit(tenantID, sig, "FAILED", "stop-loss placement failed; entry cancel failed; market-flattened", "")
	return results
}
