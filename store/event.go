package store

import "gorm.io/gorm"

// TradeEventStore is the append-only repository for TradeEvent rows.
type TradeEventStore struct {
	db *gorm.DB
}

func NewTradeEventStore(db *gorm.DB) *TradeEventStore { return &TradeEventStore{db: db} }

func (s *TradeEventStore) InitTables() error {
	return s.db.AutoMigrate(&TradeEvent{})
}

// Append inserts one event row. Never mutated afterwards.
func (s *TradeEventStore) Append(tx *gorm.DB, e *TradeEvent) error {
	if e.Timestamp == 0 {
		e.Timestamp = nowMs()
	}
	db := s.db
	if tx != nil {
		db = tx
	}
	return db.Create(e).Error
}

// ForTrade returns the event sequence for a trade, oldest first.
func (s *TradeEventStore) ForTrade(tradeID string) ([]TradeEvent, error) {
	var events []TradeEvent
	err := s.db.Where("trade_id = ?", tradeID).Order("timestamp ASC").Find(&events).Error
	return events, err
}
