package riskconfig

import (
	"testing"

	"github.com/stretchr/testify/require"

	"tradebridge/store"
)

func newTestConfigStore(t *testing.T) *store.ConfigStore {
	t.Helper()
	st, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st.Config()
}

func TestAllows_EmptyWhitelistAllowsEverything(t *testing.T) {
	c := EffectiveTradeConfig{}
	require.True(t, c.Allows("BTCUSDT"))
}

func TestAllows_WhitelistIsCaseInsensitive(t *testing.T) {
	c := EffectiveTradeConfig{AllowedSymbols: []string{"btcusdt"}}
	require.True(t, c.Allows("BTCUSDT"))
	require.False(t, c.Allows("ETHUSDT"))
}

func TestResolve_SingleTenantUsesSeededGlobalDefaults(t *testing.T) {
	cfgStore := newTestConfigStore(t)
	r := NewResolver(cfgStore)

	resolved, err := r.Resolve("")
	require.NoError(t, err)
	require.Greater(t, resolved.RiskPercent, 0.0, "an unconfigured global must still resolve to the seeded row's defaults")
}

func TestResolve_UsesPersistedGlobalRowWhenPresent(t *testing.T) {
	cfgStore := newTestConfigStore(t)
	require.NoError(t, cfgStore.SaveGlobal(&store.GlobalTradeConfig{
		RiskPercent:     0.05,
		MaxPositionUsdt: 1000,
		FixedLeverage:   20,
		DedupEnabled:    true,
	}))

	r := NewResolver(cfgStore)
	resolved, err := r.Resolve("")
	require.NoError(t, err)
	require.Equal(t, 0.05, resolved.RiskPercent)
	require.Equal(t, 1000.0, resolved.MaxPositionUsdt)
	require.Equal(t, 20, resolved.FixedLeverage)
}

func TestResolve_TenantOverrideAppliesOnlyFlaggedFields(t *testing.T) {
	cfgStore := newTestConfigStore(t)
	require.NoError(t, cfgStore.SaveGlobal(&store.GlobalTradeConfig{
		RiskPercent:     0.05,
		MaxPositionUsdt: 1000,
		FixedLeverage:   20,
	}))
	require.NoError(t, cfgStore.SaveTenantOverride(&store.TenantTradeConfig{
		TenantID:         "tenantA",
		HasRiskPercent:   true,
		RiskPercent:      0.10,
		HasFixedLeverage: false,
		Enabled:          true,
		AutoTradeEnabled: true,
	}))

	r := NewResolver(cfgStore)
	resolved, err := r.Resolve("tenantA")
	require.NoError(t, err)
	require.Equal(t, 0.10, resolved.RiskPercent, "overridden field must take the tenant value")
	require.Equal(t, 1000.0, resolved.MaxPositionUsdt, "non-overridden field must inherit the global value")
	require.Equal(t, 20, resolved.FixedLeverage, "HasFixedLeverage=false must keep the global value even when RiskPercent is overridden")
}

func TestResolve_TenantOverrideCanSetMeaningfulZero(t *testing.T) {
	cfgStore := newTestConfigStore(t)
	require.NoError(t, cfgStore.SaveGlobal(&store.GlobalTradeConfig{MaxPositionUsdt: 1000}))
	require.NoError(t, cfgStore.SaveTenantOverride(&store.TenantTradeConfig{
		TenantID:           "tenantA",
		HasMaxPositionUsdt: true,
		MaxPositionUsdt:    0,
		Enabled:            true,
		AutoTradeEnabled:   true,
	}))

	r := NewResolver(cfgStore)
	resolved, err := r.Resolve("tenantA")
	require.NoError(t, err)
	require.Equal(t, 0.0, resolved.MaxPositionUsdt, "HasMaxPositionUsdt=true with value 0 must mean uncapped, not inherited")
}

func TestResolve_UnknownTenantFallsBackToGlobal(t *testing.T) {
	cfgStore := newTestConfigStore(t)
	require.NoError(t, cfgStore.SaveGlobal(&store.GlobalTradeConfig{RiskPercent: 0.03}))

	r := NewResolver(cfgStore)
	resolved, err := r.Resolve("ghost-tenant")
	require.NoError(t, err)
	require.Equal(t, 0.03, resolved.RiskPercent)
}
