package store

import "gorm.io/gorm"

// SignalAuditStore records the fire-and-forget disposition of every inbound
// signal. Failures here must never be surfaced to the caller as engine errors.
type SignalAuditStore struct {
	db *gorm.DB
}

func NewSignalAuditStore(db *gorm.DB) *SignalAuditStore { return &SignalAuditStore{db: db} }

func (s *SignalAuditStore) InitTables() error {
	return s.db.AutoMigrate(&SignalAudit{})
}

// Record inserts one audit row. executionStatus is one of EXECUTED, REJECTED,
// IGNORED, FAILED.
func (s *SignalAuditStore) Record(a *SignalAudit) error {
	a.CreatedAt = nowMs()
	return s.db.Create(a).Error
}
