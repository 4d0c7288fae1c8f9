package engine

import (
	"fmt"
	"time"

	"tradebridge/bridgeerr"
	"tradebridge/dedup"
	"tradebridge/notify"
	"tradebridge/riskconfig"
	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

// preTradeContext carries everything the pre-trade pipeline resolved, reused
// by order placement so nothing is queried from the exchange twice within
// one locked operation.
type preTradeContext struct {
	cfg       riskconfig.EffectiveTradeConfig
	client    *trader.Client
	balance   trader.Balance
	markPrice float64
	existing  *store.Trade // non-nil only for a DCA against an already-OPEN trade
	side      signal.Side  // resolved side: carried as-is for ENTRY, inferred for DCA
}

// preTradeCheck runs the strict-fail pipeline shared by ENTRY and DCA
// (§4.1.1). The first failing check returns a single rejected OrderResult;
// callers must stop and return it immediately rather than continue the
// pipeline.
func (e *Engine) preTradeCheck(tenantID string, sig *signal.TradeSignal) (*preTradeContext, *trader.OrderResult) {
	cfg, err := e.resolver.Resolve(tenantID)
	if err != nil {
		return nil, rejected("PRECHECK", bridgeerr.Wrap(bridgeerr.PersistenceFailed, "resolve trade config", err))
	}

	if !cfg.Allows(sig.Symbol) {
		return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "symbol not in allowed list"))
	}

	client := e.traders.Get(tenantID)
	if client == nil {
		return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.ExchangeQueryFailed, "no exchange credentials bound for tenant"))
	}

	balance, err := client.GetBalance()
	if err != nil {
		return nil, rejected("PRECHECK", err)
	}

	if cfg.MaxDailyLossUsdt > 0 {
		todayLoss, lossErr := e.todayNetLoss(tenantID)
		if lossErr != nil {
			return nil, rejected("PRECHECK", bridgeerr.Wrap(bridgeerr.PersistenceFailed, "daily loss aggregation", lossErr))
		}
		if -todayLoss >= cfg.MaxDailyLossUsdt {
			e.sink.Notify(tenantID, "Daily loss circuit breaker tripped",
				fmt.Sprintf("%s: today's realized loss %.2f meets or exceeds the limit %.2f", sig.Symbol, -todayLoss, cfg.MaxDailyLossUsdt),
				notify.SeverityCritical)
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "daily loss circuit breaker tripped"))
		}
	}

	position, err := client.GetPosition(sig.Symbol)
	if err != nil {
		return nil, rejected("PRECHECK", err)
	}

	var existing *store.Trade
	side := sig.Side

	if !sig.IsDca {
		if position.Quantity != 0 {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "position already open for "+sig.Symbol))
		}
	} else {
		existing, err = e.store.Trade().FindOpenTrade(nil, tenantID, sig.Symbol)
		if err != nil {
			return nil, rejected("PRECHECK", bridgeerr.Wrap(bridgeerr.PersistenceFailed, "find open trade", err))
		}
		if existing == nil {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "no open trade to DCA into"))
		}
		if cfg.MaxDcaPerSymbol > 0 && existing.DcaCount >= cfg.MaxDcaPerSymbol-1 {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "max DCA count reached for "+sig.Symbol))
		}
		positionSide := signal.SideLong
		if position.Direction() == trader.SideSell {
			positionSide = signal.SideShort
		}
		if side == signal.SideNone {
			side = positionSide
		} else if side != positionSide {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "DCA side does not match existing position side"))
		}
	}

	if !sig.IsDca {
		orders, err := client.GetOpenOrders(sig.Symbol)
		if err != nil {
			return nil, rejected("PRECHECK", err)
		}
		for _, o := range orders {
			if o.Type == "LIMIT" {
				return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "open entry order already resting on "+sig.Symbol))
			}
		}
	}

	if e.multiTenant && tenantID != "" {
		if dup, rej := e.checkExecutorDedup(tenantID, sig, cfg.DedupEnabled); dup {
			return nil, rej
		}
	} else if dup, rej := e.checkSignalDedup(sig, cfg.DedupEnabled); dup {
		return nil, rej
	}

	if sig.StopLoss == 0 {
		return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.InputInvalid, "stop_loss must be non-zero"))
	}
	switch side {
	case signal.SideLong:
		if sig.StopLoss >= sig.EntryPriceLow {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.InputInvalid, "stop_loss must be below entry for LONG"))
		}
	case signal.SideShort:
		if sig.StopLoss <= sig.EntryPriceLow {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.InputInvalid, "stop_loss must be above entry for SHORT"))
		}
	}

	mark, err := client.GetMarketPrice(sig.Symbol)
	if err != nil {
		return nil, rejected("PRECHECK", err)
	}
	if mark > 0 {
		deviation := abs(sig.EntryPriceLow-mark) / mark
		if deviation > 0.10 {
			return nil, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "entry price deviates more than 10% from mark price"))
		}
	}

	// Errors from the margin-mode call are logged by the client itself and
	// ignored here: an already-isolated symbol or an open position both
	// surface as errors that do not block the trade.
	_ = client.SetMarginMode(sig.Symbol, true)

	if err := client.SetLeverage(sig.Symbol, cfg.FixedLeverage); err != nil {
		return nil, rejected("PRECHECK", err)
	}

	return &preTradeContext{cfg: cfg, client: client, balance: balance, markPrice: mark, existing: existing, side: side}, nil
}

// checkSignalDedup applies §4.3.1's two-level signal-level dedup: an
// in-memory cache check backed by the persisted signal-hash existence query
// for the race window between the cache and the store. It guards against
// the same signal arriving twice, fleet-wide, and must run exactly once per
// signal: in single-tenant mode that is every dispatch; in multi-tenant mode
// it runs once before fan-out (via CheckGlobalDedup), never inside a
// per-tenant worker — otherwise the first tenant to reach it would insert
// the bare hash and every other tenant would be rejected as a duplicate.
func (e *Engine) checkSignalDedup(sig *signal.TradeSignal, enabled bool) (bool, *trader.OrderResult) {
	if !enabled {
		return false, nil
	}

	hash := sig.Hash()
	if e.dedup.Seen(hash, dedup.SignalWindow) {
		return true, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "duplicate signal within dedup window"))
	}

	cutoff := time.Now().Add(-dedup.SignalWindow).UnixMilli()
	exists, err := e.store.Trade().ExistsBySignalHashAndCreatedAtAfter(nil, hash, cutoff)
	if err != nil {
		return true, rejected("PRECHECK", bridgeerr.Wrap(bridgeerr.PersistenceFailed, "dedup existence check", err))
	}
	if exists {
		e.dedup.Backfill(hash)
		return true, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "duplicate signal already persisted"))
	}

	return false, nil
}

// checkExecutorDedup applies §4.3.2's executor-level dedup: a cache key
// scoped to (tenantID, signalHash), so that broadcasting one signal to N
// tenants only rejects a given tenant being hit by the same signal twice,
// leaving the other N-1 tenants unaffected.
func (e *Engine) checkExecutorDedup(tenantID string, sig *signal.TradeSignal, enabled bool) (bool, *trader.OrderResult) {
	if !enabled {
		return false, nil
	}
	tenantKey := dedup.TenantKey(tenantID, sig.Hash())
	if e.dedup.Seen(tenantKey, dedup.SignalWindow) {
		return true, rejected("PRECHECK", bridgeerr.New(bridgeerr.RiskRejected, "duplicate signal for tenant within dedup window"))
	}
	return false, nil
}

// CheckGlobalDedup runs the bare signal-level check (§4.3.1) once for a
// signal about to be broadcast to every eligible tenant. It is wired as the
// fan-out broadcaster's pre-broadcast dedup hook (§4.3.2) so that no
// per-tenant worker ever checks or inserts the bare hash itself.
func (e *Engine) CheckGlobalDedup(sig *signal.TradeSignal) bool {
	cfg, err := e.resolver.Resolve("")
	if err != nil {
		return false
	}
	dup, _ := e.checkSignalDedup(sig, cfg.DedupEnabled)
	return dup
}

func (e *Engine) todayNetLoss(tenantID string) (float64, error) {
	now := time.Now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return e.store.Trade().SumNegativeNetProfitBetween(nil, tenantID, startOfDay.UnixMilli(), now.UnixMilli())
}
