package engine

import (
	"tradebridge/bridgeerr"
	"tradebridge/dedup"
	"tradebridge/lock"
	"tradebridge/logger"
	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

// ExecuteCancel cancels every open order on the signal's symbol. It carries
// no position or Trade-status effect of its own — it is a standing-order
// wipe, deduplicated on its own 30-second window keyed by symbol rather than
// the signal-level dedup cache used by ENTRY/DCA.
func (e *Engine) ExecuteCancel(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
	sig.Normalize()

	if e.dedup.Seen(dedup.CancelKey(sig.Symbol), dedup.CancelWindow) {
		err := bridgeerr.New(bridgeerr.RiskRejected, "duplicate CANCEL within dedup window")
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{trader.Failed("CANCEL", err)}
	}

	client := e.traders.Get(tenantID)
	if client == nil {
		err := bridgeerr.New(bridgeerr.ExchangeQueryFailed, "no exchange credentials bound for tenant")
		e.audit(tenantID, sig, "REJECTED", err.Error(), "")
		return []trader.OrderResult{trader.Failed("CANCEL", err)}
	}

	results, _ := lock.WithLock(e.locks, sig.Symbol, func() ([]trader.OrderResult, error) {
		if err := client.CancelAllOrders(sig.Symbol); err != nil {
			return []trader.OrderResult{trader.Failed("CANCEL", err)}, nil
		}

		if trade, findErr := e.store.Trade().FindOpenTrade(nil, tenantID, sig.Symbol); findErr == nil && trade != nil {
			if err := e.store.Event().Append(nil, &store.TradeEvent{TradeID: trade.ID, EventType: "CANCEL", Success: true}); err != nil {
				logger.Warnf("persist cancel event for %s: %v", sig.Symbol, err)
			}
		}

		return []trader.OrderResult{{Step: "CANCEL", Success: true, Symbol: sig.Symbol}}, nil
	})

	if len(results) > 0 && results[0].Success {
		e.audit(tenantID, sig, "EXECUTED", "", "")
	} else if len(results) > 0 {
		e.audit(tenantID, sig, "FAILED", results[0].ErrorMessage, "")
	}

	return results
}
