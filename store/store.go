// Package store provides the durable persistence layer: Trade, TradeEvent
// and signal-audit repositories behind a single Store handle, plus the
// config rows consumed by the risk-config resolver.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	"gorm.io/gorm"

	"tradebridge/logger"
)

// Store is the unified data storage handle. Sub-repositories are lazily
// constructed on first access and cached.
type Store struct {
	gdb *gorm.DB
	db  *sql.DB

	trade       *TradeStore
	event       *TradeEventStore
	audit       *SignalAuditStore
	config      *ConfigStore

	mu sync.RWMutex
}

// New creates a Store backed by a SQLite file.
func New(dbPath string) (*Store, error) {
	return NewWithConfig(DBConfig{Type: DBTypeSQLite, Path: dbPath})
}

// NewWithConfig creates a Store from explicit connection parameters.
func NewWithConfig(cfg DBConfig) (*Store, error) {
	gdb, err := InitGormWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	s := &Store{gdb: gdb, db: sqlDB}
	if err := s.initTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	dbTypeStr := "SQLite"
	if cfg.Type == DBTypePostgres {
		dbTypeStr = "PostgreSQL"
	}
	logger.Infof("database initialized (GORM, %s)", dbTypeStr)
	return s, nil
}

// NewFromGorm wraps an already-open GORM connection (used by tests).
func NewFromGorm(gdb *gorm.DB) (*Store, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	s := &Store{gdb: gdb, db: sqlDB}
	if err := s.initTables(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initTables() error {
	if err := s.gdb.Exec(`
		CREATE TABLE IF NOT EXISTS system_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create system_config table: %w", err)
	}
	if err := s.Trade().InitTables(); err != nil {
		return fmt.Errorf("failed to initialize trade tables: %w", err)
	}
	if err := s.Event().InitTables(); err != nil {
		return fmt.Errorf("failed to initialize trade event tables: %w", err)
	}
	if err := s.Audit().InitTables(); err != nil {
		return fmt.Errorf("failed to initialize signal audit tables: %w", err)
	}
	if err := s.Config().InitTables(); err != nil {
		return fmt.Errorf("failed to initialize trade config tables: %w", err)
	}
	return nil
}

// Trade returns the Trade repository.
func (s *Store) Trade() *TradeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trade == nil {
		s.trade = NewTradeStore(s.gdb)
	}
	return s.trade
}

// Event returns the TradeEvent repository.
func (s *Store) Event() *TradeEventStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event == nil {
		s.event = NewTradeEventStore(s.gdb)
	}
	return s.event
}

// Audit returns the signal-audit repository.
func (s *Store) Audit() *SignalAuditStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audit == nil {
		s.audit = NewSignalAuditStore(s.gdb)
	}
	return s.audit
}

// Config returns the trade-config repository.
func (s *Store) Config() *ConfigStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		s.config = NewConfigStore(s.gdb)
	}
	return s.config
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GormDB returns the underlying GORM handle, for callers that need a
// transaction or a query scope not exposed by the repositories above.
func (s *Store) GormDB() *gorm.DB {
	return s.gdb
}

// DBType reports the backing engine, detected from the GORM dialector.
func (s *Store) DBType() DBType {
	if s.gdb != nil && s.gdb.Dialector.Name() == "postgres" {
		return DBTypePostgres
	}
	return DBTypeSQLite
}

// GetSystemConfig gets a system configuration value by key.
func (s *Store) GetSystemConfig(key string) (string, error) {
	var value string
	result := s.gdb.Raw("SELECT value FROM system_config WHERE key = ?", key).Scan(&value)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return "", nil
		}
		return "", result.Error
	}
	return value, nil
}

// SetSystemConfig sets a system configuration value.
func (s *Store) SetSystemConfig(key, value string) error {
	return s.gdb.Exec(`
		INSERT INTO system_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value).Error
}

// Transaction runs fn in a single durable transaction. Every top-level
// engine operation that mutates both a Trade and its TradeEvent appends
// must use this so a crash mid-operation rolls back both.
func (s *Store) Transaction(fn func(tx *gorm.DB) error) error {
	return s.gdb.Transaction(fn)
}
