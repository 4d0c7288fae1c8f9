package store

import (
	"errors"

	"gorm.io/gorm"
)

// ConfigStore is the repository backing the riskconfig resolver: a single
// global row plus per-tenant override rows.
type ConfigStore struct {
	db *gorm.DB
}

func NewConfigStore(db *gorm.DB) *ConfigStore { return &ConfigStore{db: db} }

func (s *ConfigStore) InitTables() error {
	if err := s.db.AutoMigrate(&GlobalTradeConfig{}, &TenantTradeConfig{}); err != nil {
		return err
	}
	var count int64
	if err := s.db.Model(&GlobalTradeConfig{}).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return s.db.Create(&GlobalTradeConfig{ID: 1}).Error
	}
	return nil
}

// GetGlobal returns the single global configuration row.
func (s *ConfigStore) GetGlobal() (*GlobalTradeConfig, error) {
	var g GlobalTradeConfig
	if err := s.db.First(&g, 1).Error; err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGlobal persists the global configuration row.
func (s *ConfigStore) SaveGlobal(g *GlobalTradeConfig) error {
	g.ID = 1
	return s.db.Save(g).Error
}

// GetTenantOverride returns the tenant's override row, or nil if none exists.
func (s *ConfigStore) GetTenantOverride(tenantID string) (*TenantTradeConfig, error) {
	var t TenantTradeConfig
	err := s.db.Where("tenant_id = ?", tenantID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListEligibleTenants returns every tenant override row eligible for fan-out:
// enabled, auto-trade enabled, and carrying a credential binding.
func (s *ConfigStore) ListEligibleTenants() ([]TenantTradeConfig, error) {
	var tenants []TenantTradeConfig
	err := s.db.Where("enabled = ? AND auto_trade_enabled = ? AND api_key <> ''", true, true).Find(&tenants).Error
	return tenants, err
}

// SaveTenantOverride upserts a tenant's override row.
func (s *ConfigStore) SaveTenantOverride(t *TenantTradeConfig) error {
	return s.db.Save(t).Error
}
