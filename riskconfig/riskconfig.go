// Package riskconfig resolves the non-null EffectiveTradeConfig bundle
// consumed by the execution engine, merging a global configuration with an
// optional per-tenant override, field by field.
package riskconfig

import (
	"strings"

	"tradebridge/config"
	"tradebridge/store"
)

// EffectiveTradeConfig is the resolved, non-null bundle of per-trade
// parameters. Downstream code never consults the raw global or tenant
// sources directly.
type EffectiveTradeConfig struct {
	RiskPercent       float64
	MaxPositionUsdt   float64
	MaxDailyLossUsdt  float64
	MaxDcaPerSymbol   int
	DcaRiskMultiplier float64
	FixedLeverage     int
	AllowedSymbols    []string
	DedupEnabled      bool
	DefaultSymbol     string
}

// Allows reports whether symbol is in the whitelist. An empty whitelist
// allows every symbol.
func (c EffectiveTradeConfig) Allows(symbol string) bool {
	if len(c.AllowedSymbols) == 0 {
		return true
	}
	for _, s := range c.AllowedSymbols {
		if strings.EqualFold(s, symbol) {
			return true
		}
	}
	return false
}

// Resolver merges the global configuration row with, in multi-tenant mode,
// a per-tenant override — this is the single point that merges; everything
// downstream consumes the resolved record.
type Resolver struct {
	cfgStore *store.ConfigStore
}

// NewResolver builds a Resolver over the persisted config repository.
func NewResolver(cfgStore *store.ConfigStore) *Resolver {
	return &Resolver{cfgStore: cfgStore}
}

// globalFromEnv builds an EffectiveTradeConfig straight from process
// configuration, used when the persisted GlobalTradeConfig row cannot be
// read. ConfigStore.InitTables seeds that row, so once the tables exist the
// row's values (its column defaults until the first write) take precedence.
func globalFromEnv() EffectiveTradeConfig {
	c := config.Get()
	return EffectiveTradeConfig{
		RiskPercent:       c.RiskPercent,
		MaxPositionUsdt:   c.MaxPositionUsdt,
		MaxDailyLossUsdt:  c.MaxDailyLossUsdt,
		MaxDcaPerSymbol:   c.MaxDcaPerSymbol,
		DcaRiskMultiplier: c.DcaRiskMultiplier,
		FixedLeverage:     c.FixedLeverage,
		AllowedSymbols:    c.AllowedSymbols,
		DedupEnabled:      c.DedupEnabled,
		DefaultSymbol:     c.DefaultSymbol,
	}
}

func splitSymbols(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(csv, ",") {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Resolve returns the effective configuration for tenantID. tenantID == ""
// resolves the single-tenant / global-only configuration.
func (r *Resolver) Resolve(tenantID string) (EffectiveTradeConfig, error) {
	base := globalFromEnv()

	g, err := r.cfgStore.GetGlobal()
	if err == nil && g != nil {
		base = EffectiveTradeConfig{
			RiskPercent:       g.RiskPercent,
			MaxPositionUsdt:   g.MaxPositionUsdt,
			MaxDailyLossUsdt:  g.MaxDailyLossUsdt,
			MaxDcaPerSymbol:   g.MaxDcaPerSymbol,
			DcaRiskMultiplier: g.DcaRiskMultiplier,
			FixedLeverage:     g.FixedLeverage,
			AllowedSymbols:    splitSymbols(g.AllowedSymbols),
			DedupEnabled:      g.DedupEnabled,
			DefaultSymbol:     g.DefaultSymbol,
		}
	}

	if tenantID == "" {
		return base, nil
	}

	override, err := r.cfgStore.GetTenantOverride(tenantID)
	if err != nil {
		return base, err
	}
	if override == nil {
		return base, nil
	}

	if override.HasRiskPercent {
		base.RiskPercent = override.RiskPercent
	}
	if override.HasMaxPositionUsdt {
		base.MaxPositionUsdt = override.MaxPositionUsdt
	}
	if override.HasMaxDailyLossUsdt {
		base.MaxDailyLossUsdt = override.MaxDailyLossUsdt
	}
	if override.HasMaxDcaPerSymbol {
		base.MaxDcaPerSymbol = override.MaxDcaPerSymbol
	}
	if override.HasDcaRiskMultiplier {
		base.DcaRiskMultiplier = override.DcaRiskMultiplier
	}
	if override.HasFixedLeverage {
		base.FixedLeverage = override.FixedLeverage
	}
	if override.HasAllowedSymbols {
		base.AllowedSymbols = splitSymbols(override.AllowedSymbols)
	}
	if override.HasDedupEnabled {
		base.DedupEnabled = override.DedupEnabled
	}
	if override.HasDefaultSymbol {
		base.DefaultSymbol = override.DefaultSymbol
	}

	return base, nil
}
