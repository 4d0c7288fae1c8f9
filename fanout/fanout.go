// Package fanout broadcasts one incoming signal to every eligible tenant
// (§4.4) through a bounded worker pool, isolating each tenant's execution so
// one tenant's failure or hang never blocks another's.
package fanout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradebridge/logger"
	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

const (
	corePoolSize = 10
	maxPoolSize  = 50
	taskTimeout  = 30 * time.Second
)

// Dispatcher is the function the broadcaster calls once per eligible tenant.
// It is typically engine.Engine.Dispatch.
type Dispatcher func(tenantID string, sig *signal.TradeSignal) []trader.OrderResult

// DedupChecker reports whether sig is a fleet-wide duplicate (§4.3.1) and
// should be rejected before fan-out. It is typically engine.Engine.CheckGlobalDedup.
type DedupChecker func(sig *signal.TradeSignal) bool

// Result captures one tenant's outcome within a broadcast.
type Result struct {
	TenantID string
	Results  []trader.OrderResult
	Err      error
	TimedOut bool
}

// Summary aggregates a broadcast's per-tenant results.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	TimedOut  int
	Results   []Result
}

// Broadcaster fans a signal out to every eligible tenant using a pool sized
// between corePoolSize and maxPoolSize, growing on demand the way a fixed
// worker pool with an overflow allowance does.
type Broadcaster struct {
	config     *store.ConfigStore
	dispatch   Dispatcher
	dedupCheck DedupChecker
	sem        chan struct{}
	overflow   chan struct{}
}

// NewBroadcaster builds a broadcaster. configStore supplies the eligible
// tenant list; dispatch is invoked once per eligible tenant.
func NewBroadcaster(configStore *store.ConfigStore, dispatch Dispatcher) *Broadcaster {
	return &Broadcaster{
		config:   configStore,
		dispatch: dispatch,
		sem:      make(chan struct{}, corePoolSize),
		overflow: make(chan struct{}, maxPoolSize-corePoolSize),
	}
}

// SetDedupCheck installs the bare signal-level dedup hook (§4.3.1) run once
// before fan-out begins. Leaving it unset (the default) skips that check —
// callers that don't wire one are expected to have already deduplicated.
func (b *Broadcaster) SetDedupCheck(check DedupChecker) {
	b.dedupCheck = check
}

// Broadcast runs dispatch for every enabled, auto-trading tenant with a bound
// exchange credential, each under its own taskTimeout-scoped context, and
// returns once every tenant has either completed, failed, or timed out.
func (b *Broadcaster) Broadcast(sig *signal.TradeSignal) Summary {
	if b.dedupCheck != nil && b.dedupCheck(sig) {
		logger.Debugf("fanout: %s %s rejected as a duplicate signal before fan-out", sig.Action, sig.Symbol)
		return Summary{}
	}

	tenants, err := b.config.ListEligibleTenants()
	if err != nil {
		logger.Errorf("fanout: list eligible tenants: %v", err)
		return Summary{}
	}

	if len(tenants) == 0 {
		logger.Debugf("fanout: no eligible tenants for %s %s", sig.Action, sig.Symbol)
		return Summary{}
	}

	resultCh := make(chan Result, len(tenants))
	var wg sync.WaitGroup

	for _, t := range tenants {
		wg.Add(1)
		tenantID := t.TenantID
		go func() {
			defer wg.Done()
			resultCh <- b.runTenant(tenantID, sig)
		}()
	}

	wg.Wait()
	close(resultCh)

	summary := Summary{Total: len(tenants)}
	for r := range resultCh {
		summary.Results = append(summary.Results, r)
		switch {
		case r.TimedOut:
			summary.TimedOut++
		case r.Err != nil:
			summary.Failed++
		default:
			summary.Succeeded++
		}
	}

	logger.Infof("fanout: %s %s broadcast to %d tenants (%d ok, %d failed, %d timed out)",
		sig.Action, sig.Symbol, summary.Total, summary.Succeeded, summary.Failed, summary.TimedOut)

	return summary
}

// runTenant acquires a pool slot (core slots first, then the bounded
// overflow), runs the dispatcher under a task-scoped timeout, and always
// releases its slot.
func (b *Broadcaster) runTenant(tenantID string, sig *signal.TradeSignal) Result {
	release := b.acquire()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), taskTimeout)
	defer cancel()

	done := make(chan []trader.OrderResult, 1)
	panicCh := make(chan any, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				panicCh <- p
			}
		}()
		done <- b.dispatch(tenantID, sig)
	}()

	select {
	case results := <-done:
		for _, r := range results {
			if !r.Success {
				return Result{TenantID: tenantID, Results: results, Err: fmt.Errorf("%s", r.ErrorMessage)}
			}
		}
		return Result{TenantID: tenantID, Results: results}

	case p := <-panicCh:
		logger.Errorf("fanout: tenant %q dispatch panicked: %v", tenantID, p)
		return Result{TenantID: tenantID, Err: fmt.Errorf("dispatch panicked: %v", p)}

	case <-ctx.Done():
		logger.Warnf("fanout: tenant %q timed out after %s", tenantID, taskTimeout)
		return Result{TenantID: tenantID, TimedOut: true, Err: ctx.Err()}
	}
}

// acquire blocks until a core or overflow slot is free and returns the
// release function for that slot.
func (b *Broadcaster) acquire() func() {
	select {
	case b.sem <- struct{}{}:
		return func() { <-b.sem }
	default:
	}

	select {
	case b.sem <- struct{}{}:
		return func() { <-b.sem }
	case b.overflow <- struct{}{}:
		return func() { <-b.overflow }
	}
}
