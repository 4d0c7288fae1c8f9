package engine

import (
	"tradebridge/bridgeerr"
	"tradebridge/riskconfig"
)

// computeQuantity implements §4.1.2's risk-based position sizing, applying
// all three hard caps in order: the configured max-notional cap, the
// 90%-of-balance margin cap, and the minimum-notional floor.
func computeQuantity(cfg riskconfig.EffectiveTradeConfig, availableBalance, entry, stopLoss float64, isDca bool) (float64, error) {
	riskMultiplier := 1.0
	if isDca {
		riskMultiplier = cfg.DcaRiskMultiplier
	}

	riskDistance := abs(entry - stopLoss)
	if riskDistance == 0 {
		return 0, bridgeerr.New(bridgeerr.RiskRejected, "stop distance is zero")
	}

	riskAmount := availableBalance * cfg.RiskPercent * riskMultiplier
	qty := riskAmount / riskDistance

	if cfg.MaxPositionUsdt > 0 {
		if notional := entry * qty; notional > cfg.MaxPositionUsdt {
			qty = cfg.MaxPositionUsdt / entry
		}
	}

	leverage := cfg.FixedLeverage
	if leverage <= 0 {
		leverage = 1
	}
	maxMargin := availableBalance * 0.90
	if requiredMargin := entry * qty / float64(leverage); requiredMargin > maxMargin {
		qty = maxMargin * float64(leverage) / entry
	}

	if entry*qty < minimumNotional {
		return 0, bridgeerr.New(bridgeerr.RiskRejected, "computed order size is below the minimum notional")
	}

	return qty, nil
}
