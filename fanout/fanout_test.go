package fanout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tradebridge/signal"
	"tradebridge/store"
	"tradebridge/trader"
)

func newEligibleTenantStore(t *testing.T, tenantIDs ...string) *store.Store {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, id := range tenantIDs {
		require.NoError(t, st.Config().SaveTenantOverride(&store.TenantTradeConfig{
			TenantID:         id,
			Enabled:          true,
			AutoTradeEnabled: true,
			APIKey:           "key-" + id,
		}))
	}
	return st
}

func testSignal() *signal.TradeSignal {
	return &signal.TradeSignal{Action: signal.ActionEntry, Symbol: "BTCUSDT", Side: signal.SideLong, EntryPriceLow: 100, StopLoss: 90}
}

func TestBroadcast_NoEligibleTenantsReturnsEmptySummary(t *testing.T) {
	st := newEligibleTenantStore(t)
	b := NewBroadcaster(st.Config(), func(string, *signal.TradeSignal) []trader.OrderResult { return nil })

	summary := b.Broadcast(testSignal())
	require.Equal(t, 0, summary.Total)
}

func TestBroadcast_SucceedsForEveryEligibleTenant(t *testing.T) {
	st := newEligibleTenantStore(t, "tenantA", "tenantB")
	b := NewBroadcaster(st.Config(), func(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
		return []trader.OrderResult{{Step: "ENTRY", Success: true, Symbol: sig.Symbol}}
	})

	summary := b.Broadcast(testSignal())
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 2, summary.Succeeded)
	require.Equal(t, 0, summary.Failed)
}

func TestBroadcast_OneTenantFailureDoesNotAffectAnother(t *testing.T) {
	st := newEligibleTenantStore(t, "tenantA", "tenantB")
	b := NewBroadcaster(st.Config(), func(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
		if tenantID == "tenantA" {
			return []trader.OrderResult{{Step: "ENTRY", Success: false, ErrorMessage: "exchange rejected"}}
		}
		return []trader.OrderResult{{Step: "ENTRY", Success: true}}
	})

	summary := b.Broadcast(testSignal())
	require.Equal(t, 2, summary.Total)
	require.Equal(t, 1, summary.Succeeded)
	require.Equal(t, 1, summary.Failed)
}

func TestBroadcast_DispatchPanicIsIsolatedAsFailure(t *testing.T) {
	st := newEligibleTenantStore(t, "tenantA")
	b := NewBroadcaster(st.Config(), func(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
		panic("boom")
	})

	summary := b.Broadcast(testSignal())
	require.Equal(t, 1, summary.Total)
	require.Equal(t, 1, summary.Failed)
	require.Contains(t, summary.Results[0].Err.Error(), "panicked")
}

func TestBroadcast_SlowTenantIsIsolatedFromFastTenant(t *testing.T) {
	st := newEligibleTenantStore(t, "tenantFast", "tenantSlow")
	b := NewBroadcaster(st.Config(), func(tenantID string, sig *signal.TradeSignal) []trader.OrderResult {
		if tenantID == "tenantSlow" {
			time.Sleep(50 * time.Millisecond)
		}
		return []trader.OrderResult{{Step: "ENTRY", Success: true}}
	})

	start := time.Now()
	summary := b.Broadcast(testSignal())
	elapsed := time.Since(start)

	require.Equal(t, 2, summary.Succeeded)
	require.Less(t, elapsed, 500*time.Millisecond, "tenants must run concurrently, not serially")
}
