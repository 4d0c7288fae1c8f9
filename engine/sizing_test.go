package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradebridge/bridgeerr"
	"tradebridge/riskconfig"
)

func baseCfg() riskconfig.EffectiveTradeConfig {
	return riskconfig.EffectiveTradeConfig{
		RiskPercent:       0.02,
		FixedLeverage:     10,
		DcaRiskMultiplier: 1,
	}
}

func TestComputeQuantity_PlainRiskBasedSizing(t *testing.T) {
	cfg := baseCfg()
	// balance=10000, risk=2% => riskAmount=200; stop distance = 100-90=10 => qty=20
	qty, err := computeQuantity(cfg, 10000, 100, 90, false)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, qty, 1e-9)
}

func TestComputeQuantity_ZeroRiskDistanceRejected(t *testing.T) {
	cfg := baseCfg()
	_, err := computeQuantity(cfg, 10000, 100, 100, false)
	require.Error(t, err)
	assert.Equal(t, bridgeerr.RiskRejected, bridgeerr.KindOf(err))
}

func TestComputeQuantity_MaxNotionalCapApplies(t *testing.T) {
	cfg := baseCfg()
	cfg.MaxPositionUsdt = 500 // caps notional at 500 => qty = 5 at entry=100
	qty, err := computeQuantity(cfg, 10000, 100, 90, false)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, qty, 1e-9)
}

func TestComputeQuantity_MarginCapApplies(t *testing.T) {
	cfg := baseCfg()
	cfg.RiskPercent = 0.5 // deliberately oversized risk to trigger the margin cap
	cfg.FixedLeverage = 2
	// balance=1000 => riskAmount=500; stop distance=10 => qty=50 => notional=5000
	// maxMargin = 1000*0.9=900; requiredMargin = 5000/2=2500 > 900 => capped
	// capped qty = 900*2/100 = 18
	qty, err := computeQuantity(cfg, 1000, 100, 90, false)
	require.NoError(t, err)
	assert.InDelta(t, 18.0, qty, 1e-9)
}

func TestComputeQuantity_BelowMinimumNotionalRejected(t *testing.T) {
	cfg := baseCfg()
	cfg.RiskPercent = 0.0001
	_, err := computeQuantity(cfg, 1000, 100, 90, false)
	require.Error(t, err)
	assert.Equal(t, bridgeerr.RiskRejected, bridgeerr.KindOf(err))
}

func TestComputeQuantity_DcaAppliesRiskMultiplier(t *testing.T) {
	cfg := baseCfg()
	cfg.DcaRiskMultiplier = 0.5
	qtyEntry, err := computeQuantity(cfg, 10000, 100, 90, false)
	require.NoError(t, err)
	qtyDca, err := computeQuantity(cfg, 10000, 100, 90, true)
	require.NoError(t, err)
	assert.InDelta(t, qtyEntry*0.5, qtyDca, 1e-9)
}

func TestComputeQuantity_ZeroOrNegativeLeverageTreatedAsOne(t *testing.T) {
	cfg := baseCfg()
	cfg.FixedLeverage = 0
	qty, err := computeQuantity(cfg, 10000, 100, 90, false)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, qty, 1e-9, "a non-positive leverage must not relax the margin cap below 1x")
}

func TestComputeQuantity_NeitherCapBindsWhenRiskQtyIsBelowBoth(t *testing.T) {
	cfg := baseCfg()
	cfg.MaxPositionUsdt = 5000
	cfg.FixedLeverage = 1
	// riskAmount = 10000*0.02=200; qty=20 (below max notional cap of 5000/100=50, so unaffected by that cap)
	// margin cap: maxMargin=9000; requiredMargin=20*100/1=2000 < 9000, unaffected
	qty, err := computeQuantity(cfg, 10000, 100, 90, false)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, qty, 1e-9)
}
