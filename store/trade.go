package store

import (
	"errors"
	"math"

	"gorm.io/gorm"
)

// ErrNoOpenTrade is a sentinel for a missing open trade. No lookup in this
// package returns it.
var ErrNoOpenTrade = errors.New("store: no open trade")

// TradeStore is the repository for Trade records. All tenant-scoped methods
// accept tenantID == "" to mean single-tenant (unscoped) mode, matching the
// runtime-flag scoping described for the persistence layer.
type TradeStore struct {
	db *gorm.DB
}

func NewTradeStore(db *gorm.DB) *TradeStore { return &TradeStore{db: db} }

func (s *TradeStore) withDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

func (s *TradeStore) InitTables() error {
	return s.db.AutoMigrate(&Trade{})
}

// FindOpenTrade returns the at-most-one OPEN trade for (tenantID, symbol).
func (s *TradeStore) FindOpenTrade(tx *gorm.DB, tenantID, symbol string) (*Trade, error) {
	var t Trade
	err := s.withDB(tx).Where("tenant_id = ? AND symbol = ? AND status = ?", tenantID, symbol, "OPEN").
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindAllOpenTrades is used by the CLOSE/MOVE_SL symbol-fallback procedure.
func (s *TradeStore) FindAllOpenTrades(tx *gorm.DB, tenantID string) ([]Trade, error) {
	var trades []Trade
	err := s.withDB(tx).Where("tenant_id = ? AND status = ?", tenantID, "OPEN").Find(&trades).Error
	return trades, err
}

// FindDcaCountBySymbol returns the DCA counter for the tenant's open trade on
// symbol, or 0 if there is none (callers gate on existence separately).
func (s *TradeStore) FindDcaCountBySymbol(tx *gorm.DB, tenantID, symbol string) (int, error) {
	t, err := s.FindOpenTrade(tx, tenantID, symbol)
	if err != nil {
		return 0, err
	}
	if t == nil {
		return 0, nil
	}
	return t.DcaCount, nil
}

// FindClosedTradesBetween is a range query over exit time, both bounds
// inclusive, Unix milliseconds UTC.
func (s *TradeStore) FindClosedTradesBetween(tx *gorm.DB, tenantID string, fromMs, toMs int64) ([]Trade, error) {
	var trades []Trade
	err := s.withDB(tx).Where("tenant_id = ? AND status = ? AND exit_time BETWEEN ? AND ?",
		tenantID, "CLOSED", fromMs, toMs).Find(&trades).Error
	return trades, err
}

// SumNegativeNetProfitBetween is the daily-loss circuit breaker aggregation:
// the signed sum of today's realized negative netProfit values.
func (s *TradeStore) SumNegativeNetProfitBetween(tx *gorm.DB, tenantID string, fromMs, toMs int64) (float64, error) {
	var sum float64
	err := s.withDB(tx).Model(&Trade{}).
		Where("tenant_id = ? AND status = ? AND exit_time BETWEEN ? AND ? AND net_profit < 0", tenantID, "CLOSED", fromMs, toMs).
		Select("COALESCE(SUM(net_profit), 0)").Row().Scan(&sum)
	return sum, err
}

// ExistsBySignalHashAndCreatedAtAfter backs the dedup layer-2 check.
func (s *TradeStore) ExistsBySignalHashAndCreatedAtAfter(tx *gorm.DB, hash string, cutoffMs int64) (bool, error) {
	var count int64
	err := s.withDB(tx).Model(&Trade{}).
		Where("signal_hash = ? AND created_at > ?", hash, cutoffMs).
		Count(&count).Error
	return count > 0, err
}

// Create inserts a fresh OPEN trade (ENTRY).
func (s *TradeStore) Create(tx *gorm.DB, t *Trade) error {
	now := nowMs()
	t.CreatedAt = now
	t.UpdatedAt = now
	if t.EntryTime == 0 {
		t.EntryTime = now
	}
	if t.Status == "" {
		t.Status = "OPEN"
	}
	if t.RemainingQuantity == 0 {
		t.RemainingQuantity = t.EntryQuantity
	}
	return s.withDB(tx).Create(t).Error
}

// ApplyDCA merges a new entry into the existing trade, per the size-weighted
// averaging formula: effectiveOldQty is remainingQuantity once the trade has
// undergone a partial close, else entryQuantity.
func (s *TradeStore) ApplyDCA(tx *gorm.DB, tradeID string, newPrice, newQty, newStopLoss, riskContribution, entryCommission float64) (*Trade, error) {
	var t Trade
	db := s.withDB(tx)
	if err := db.Where("id = ?", tradeID).First(&t).Error; err != nil {
		return nil, err
	}

	effectiveOldQty := t.EntryQuantity
	if t.TotalClosedQuantity > 0 {
		effectiveOldQty = t.RemainingQuantity
	}

	newAvgEntry := (t.EntryPrice*effectiveOldQty + newPrice*newQty) / (effectiveOldQty + newQty)
	newAvgEntry = round2(newAvgEntry)

	t.EntryPrice = newAvgEntry
	t.EntryQuantity = effectiveOldQty + newQty
	t.RemainingQuantity = 0
	t.TotalClosedQuantity = 0
	t.DcaCount++
	t.RiskAmount += riskContribution
	t.EntryCommission += entryCommission
	t.StopLoss = newStopLoss
	t.UpdatedAt = nowMs()

	if err := db.Save(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// MoveStopLoss updates only the resting stop-loss price recorded for a trade.
func (s *TradeStore) MoveStopLoss(tx *gorm.DB, tradeID string, newStopLoss float64) error {
	return s.withDB(tx).Model(&Trade{}).Where("id = ?", tradeID).
		Updates(map[string]interface{}{"stop_loss": newStopLoss, "updated_at": nowMs()}).Error
}

// PartialClose accumulates close bookkeeping; status remains OPEN.
func (s *TradeStore) PartialClose(tx *gorm.DB, tradeID string, closedQty, commission float64) error {
	var t Trade
	db := s.withDB(tx)
	if err := db.Where("id = ?", tradeID).First(&t).Error; err != nil {
		return err
	}
	t.TotalClosedQuantity += closedQty
	t.RemainingQuantity = t.EntryQuantity - t.TotalClosedQuantity
	t.Commission += commission
	t.UpdatedAt = nowMs()
	return db.Save(&t).Error
}

// PnLResult is the result of the §4.1.7 close computation.
type PnLResult struct {
	GrossProfit float64
	Commission  float64
	NetProfit   float64
}

// ComputeCloseResult applies the direction law and conservation invariant.
func ComputeCloseResult(side string, entryPrice, exitPrice, qty, entryCommission, exitCommission float64) PnLResult {
	direction := 1.0
	if side == "SHORT" {
		direction = -1.0
	}
	gross := (exitPrice - entryPrice) * qty * direction
	commission := entryCommission + exitCommission
	return PnLResult{
		GrossProfit: round2(gross),
		Commission:  round2(commission),
		NetProfit:   round2(gross - commission),
	}
}

// FullClose marks a trade CLOSED and stamps the exit/PnL fields.
func (s *TradeStore) FullClose(tx *gorm.DB, tradeID, exitOrderID, exitReason string, exitPrice, exitQty, exitCommission float64) (*Trade, PnLResult, error) {
	var t Trade
	db := s.withDB(tx)
	if err := db.Where("id = ?", tradeID).First(&t).Error; err != nil {
		return nil, PnLResult{}, err
	}

	qty := exitQty
	if qty == 0 {
		qty = t.RemainingQuantity
	}
	if qty == 0 {
		qty = t.EntryQuantity
	}

	res := ComputeCloseResult(t.Side, t.EntryPrice, exitPrice, qty, t.EntryCommission, exitCommission)

	t.Status = "CLOSED"
	t.ExitPrice = exitPrice
	t.ExitQuantity = qty
	t.ExitTime = nowMs()
	t.ExitOrderID = exitOrderID
	t.ExitReason = exitReason
	t.GrossProfit = res.GrossProfit
	t.Commission = res.Commission
	t.NetProfit = res.NetProfit
	t.UpdatedAt = t.ExitTime

	if err := db.Save(&t).Error; err != nil {
		return nil, PnLResult{}, err
	}
	return &t, res, nil
}

// Cancel marks a trade CANCELLED without any PnL computation (entry never filled / fail-safe flattened pre-persist).
func (s *TradeStore) Cancel(tx *gorm.DB, tradeID string) error {
	return s.withDB(tx).Model(&Trade{}).Where("id = ?", tradeID).
		Updates(map[string]interface{}{"status": "CANCELLED", "updated_at": nowMs()}).Error
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
