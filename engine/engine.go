// Package engine implements the execution engine (§4.1): it turns one
// validated TradeSignal into exchange orders and persisted Trade/TradeEvent
// state, correctly under concurrent access and partial failure. Every public
// operation acquires the per-symbol lock shared with the stream reconciler
// for its entire duration.
package engine

import (
	"fmt"
	"strconv"
	"strings"

	"tradebridge/dedup"
	"tradebridge/lock"
	"tradebridge/logger"
	"tradebridge/notify"
	"tradebridge/riskconfig"
	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

const minimumNotional = 5.0

// Engine is the execution engine. tenantID == "" addresses single-tenant
// mode throughout; every method accepts it as the first argument rather
// than carrying it on a mutable thread-local, per §9's "ambient singletons"
// redesign note.
type Engine struct {
	store       *store.Store
	traders     *trader.Pool
	locks       *lock.Registry
	dedup       *dedup.Cache
	resolver    *riskconfig.Resolver
	sink        notify.Sink
	multiTenant bool
}

// New wires the execution engine from its already-constructed collaborators.
func New(st *store.Store, traders *trader.Pool, locks *lock.Registry, dedupCache *dedup.Cache, resolver *riskconfig.Resolver, sink notify.Sink, multiTenant bool) *Engine {
	return &Engine{
		store:       st,
		traders:     traders,
		locks:       locks,
		dedup:       dedupCache,
		resolver:    resolver,
		sink:        sink,
		multiTenant: multiTenant,
	}
}

// Dispatch routes a signal to the matching operation by action — the single
// entry point the intake transport and the fan-out worker pool call through.
func (e *Engine) Dispatch(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
	switch sig.Action {
	case signal.ActionEntry, signal.ActionDCA:
		return e.ExecuteEntry(tenantID, sig)
	case signal.ActionClose:
		return e.ExecuteClose(tenantID, sig)
	case signal.ActionMoveSL:
		return e.ExecuteMoveSL(tenantID, sig)
	case signal.ActionCancel:
		return e.ExecuteCancel(tenantID, sig)
	case signal.ActionInfo:
		return nil
	default:
		return []trader.OrderResult{trader.Failed("PRECHECK", fmt.Errorf("unhandled action %q", sig.Action))}
	}
}

// audit records the fire-and-forget signal disposition (§4.6.3,
// recordOrderEvent's audit analogue). Failure here is logged, never
// surfaced — matching the persistence-failure propagation policy.
func (e *Engine) audit(tenantID string, sig *signal.TradeSignal, status, reason, tradeID string) {
	a := &store.SignalAudit{
		TenantID:        tenantID,
		Symbol:          sig.Symbol,
		Action:          string(sig.Action),
		SignalHash:      sig.Hash(),
		ExecutionStatus: status,
		RejectionReason: reason,
		TradeID:         tradeID,
	}
	if err := e.store.Audit().Record(a); err != nil {
		logger.Warnf("record signal audit for %s: %v", sig.Symbol, err)
	}
}

// rejected wraps err as a single failed OrderResult for step, the shape
// every pre-trade check returns on its first strict-fail rejection.
func rejected(step string, err error) *trader.OrderResult {
	r := trader.Failed(step, err)
	return &r
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// joinFloats serializes a take-profit ladder into Trade.TakeProfits'
// comma-separated storage format.
func joinFloats(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
