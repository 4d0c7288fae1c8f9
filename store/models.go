package store

import "time"

// DBType identifies the backing relational engine.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypePostgres DBType = "postgres"
)

// DBConfig carries the connection parameters for either backend.
type DBConfig struct {
	Type     DBType
	Path     string // SQLite file path
	Host     string // PostgreSQL host
	Port     int    // PostgreSQL port
	User     string
	Password string
	DBName  string
	SSLMode string
}

// nowMs returns the current UTC time as Unix milliseconds, the timestamp
// representation used across every table in this package.
func nowMs() int64 {
	return time.Now().UTC().UnixMilli()
}

// Trade is the persistent record of one logical position owned by one tenant.
// TenantID is empty string in single-tenant mode.
type Trade struct {
	ID                  string  `gorm:"column:id;primaryKey" json:"id"`
	TenantID            string  `gorm:"column:tenant_id;not null;default:'';index:idx_trades_tenant_status,priority:1;index:idx_trades_tenant_symbol_status,priority:1" json:"tenant_id"`
	Symbol              string  `gorm:"column:symbol;not null;index:idx_trades_tenant_symbol_status,priority:2" json:"symbol"`
	Side                string  `gorm:"column:side;not null" json:"side"`
	EntryPrice          float64 `gorm:"column:entry_price;not null" json:"entry_price"`
	EntryQuantity       float64 `gorm:"column:entry_quantity;not null" json:"entry_quantity"`
	EntryTime           int64   `gorm:"column:entry_time;not null" json:"entry_time"`
	EntryOrderID        string  `gorm:"column:entry_order_id;default:''" json:"entry_order_id"`
	StopLoss            float64 `gorm:"column:stop_loss;default:0" json:"stop_loss"`
	TakeProfits         string  `gorm:"column:take_profits;default:''" json:"take_profits"` // comma-separated
	Leverage            int     `gorm:"column:leverage;default:1" json:"leverage"`
	RiskAmount          float64 `gorm:"column:risk_amount;default:0" json:"risk_amount"`
	EntryCommission     float64 `gorm:"column:entry_commission;default:0" json:"entry_commission"`
	SignalHash          string  `gorm:"column:signal_hash;default:'';index:idx_trades_signal_hash_created,priority:1" json:"signal_hash"`
	Status              string  `gorm:"column:status;not null;default:OPEN;index:idx_trades_tenant_status,priority:2;index:idx_trades_tenant_symbol_status,priority:3" json:"status"`
	DcaCount            int     `gorm:"column:dca_count;default:0" json:"dca_count"`
	TotalClosedQuantity float64 `gorm:"column:total_closed_quantity;default:0" json:"total_closed_quantity"`
	RemainingQuantity   float64 `gorm:"column:remaining_quantity;default:0" json:"remaining_quantity"`
	ExitPrice           float64 `gorm:"column:exit_price;default:0" json:"exit_price"`
	ExitQuantity        float64 `gorm:"column:exit_quantity;default:0" json:"exit_quantity"`
	ExitTime            int64   `gorm:"column:exit_time;default:0" json:"exit_time"`
	ExitOrderID         string  `gorm:"column:exit_order_id;default:''" json:"exit_order_id"`
	ExitReason          string  `gorm:"column:exit_reason;default:''" json:"exit_reason"`
	GrossProfit         float64 `gorm:"column:gross_profit;default:0" json:"gross_profit"`
	Commission          float64 `gorm:"column:commission;default:0" json:"commission"`
	NetProfit           float64 `gorm:"column:net_profit;default:0" json:"net_profit"`
	Source              string  `gorm:"column:source;default:signal" json:"source"`
	CreatedAt           int64   `gorm:"column:created_at;index:idx_trades_signal_hash_created,priority:2" json:"created_at"`
	UpdatedAt           int64   `gorm:"column:updated_at" json:"updated_at"`
}

func (Trade) TableName() string { return "bridge_trades" }

// TradeEvent is an append-only log entry tied to a Trade. Never mutated.
type TradeEvent struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TradeID      string `gorm:"column:trade_id;not null;index:idx_events_trade_time,priority:1" json:"trade_id"`
	EventType    string `gorm:"column:event_type;not null" json:"event_type"`
	ExchangeOrderID string `gorm:"column:exchange_order_id;default:''" json:"exchange_order_id"`
	Side         string  `gorm:"column:side;default:''" json:"side"`
	OrderType    string  `gorm:"column:order_type;default:''" json:"order_type"`
	Price        float64 `gorm:"column:price;default:0" json:"price"`
	Quantity     float64 `gorm:"column:quantity;default:0" json:"quantity"`
	Success      bool    `gorm:"column:success;default:true" json:"success"`
	ErrorMessage string  `gorm:"column:error_message;default:''" json:"error_message"`
	Detail       string  `gorm:"column:detail;default:''" json:"detail"` // opaque JSON document
	Timestamp    int64   `gorm:"column:timestamp;index:idx_events_trade_time,priority:2" json:"timestamp"`
}

func (TradeEvent) TableName() string { return "bridge_trade_events" }

// SignalAudit records the resolved disposition of every inbound signal,
// fire-and-forget. Failure to record must never fail the caller.
type SignalAudit struct {
	ID               int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	TenantID         string `gorm:"column:tenant_id;default:''" json:"tenant_id"`
	Symbol           string `gorm:"column:symbol" json:"symbol"`
	Action           string `gorm:"column:action" json:"action"`
	SignalHash       string `gorm:"column:signal_hash;default:''" json:"signal_hash"`
	ExecutionStatus  string `gorm:"column:execution_status;not null" json:"execution_status"`
	RejectionReason  string `gorm:"column:rejection_reason;default:''" json:"rejection_reason"`
	TradeID          string `gorm:"column:trade_id;default:''" json:"trade_id"`
	CreatedAt        int64  `gorm:"column:created_at" json:"created_at"`
}

func (SignalAudit) TableName() string { return "bridge_signal_audits" }

// GlobalTradeConfig is the single global row consulted when no tenant
// override exists, or in single-tenant mode.
type GlobalTradeConfig struct {
	ID                int     `gorm:"primaryKey" json:"id"`
	RiskPercent       float64 `gorm:"column:risk_percent;default:0.02" json:"risk_percent"`
	MaxPositionUsdt   float64 `gorm:"column:max_position_usdt;default:0" json:"max_position_usdt"`
	MaxDailyLossUsdt  float64 `gorm:"column:max_daily_loss_usdt;default:0" json:"max_daily_loss_usdt"`
	MaxDcaPerSymbol   int     `gorm:"column:max_dca_per_symbol;default:3" json:"max_dca_per_symbol"`
	DcaRiskMultiplier float64 `gorm:"column:dca_risk_multiplier;default:1" json:"dca_risk_multiplier"`
	FixedLeverage     int     `gorm:"column:fixed_leverage;default:10" json:"fixed_leverage"`
	AllowedSymbols    string  `gorm:"column:allowed_symbols;default:''" json:"allowed_symbols"` // comma-separated
	DedupEnabled      bool    `gorm:"column:dedup_enabled;default:true" json:"dedup_enabled"`
	DefaultSymbol     string  `gorm:"column:default_symbol;default:''" json:"default_symbol"`
}

func (GlobalTradeConfig) TableName() string { return "bridge_global_trade_config" }

// TenantTradeConfig overrides GlobalTradeConfig field-by-field for one tenant.
// Zero-valued numeric fields and empty strings mean "inherit from global";
// a dedicated HasX flag distinguishes a genuine override from the zero value
// where the zero value is itself meaningful (e.g. MaxPositionUsdt=0 = uncapped).
type TenantTradeConfig struct {
	TenantID             string  `gorm:"column:tenant_id;primaryKey" json:"tenant_id"`
	ChatID               int64   `gorm:"column:chat_id;default:0" json:"chat_id"`
	HasRiskPercent       bool    `gorm:"column:has_risk_percent;default:false" json:"has_risk_percent"`
	RiskPercent          float64 `gorm:"column:risk_percent;default:0" json:"risk_percent"`
	HasMaxPositionUsdt   bool    `gorm:"column:has_max_position_usdt;default:false" json:"has_max_position_usdt"`
	MaxPositionUsdt      float64 `gorm:"column:max_position_usdt;default:0" json:"max_position_usdt"`
	HasMaxDailyLossUsdt  bool    `gorm:"column:has_max_daily_loss_usdt;default:false" json:"has_max_daily_loss_usdt"`
	MaxDailyLossUsdt     float64 `gorm:"column:max_daily_loss_usdt;default:0" json:"max_daily_loss_usdt"`
	HasMaxDcaPerSymbol   bool    `gorm:"column:has_max_dca_per_symbol;default:false" json:"has_max_dca_per_symbol"`
	MaxDcaPerSymbol      int     `gorm:"column:max_dca_per_symbol;default:0" json:"max_dca_per_symbol"`
	HasDcaRiskMultiplier bool    `gorm:"column:has_dca_risk_multiplier;default:false" json:"has_dca_risk_multiplier"`
	DcaRiskMultiplier    float64 `gorm:"column:dca_risk_multiplier;default:0" json:"dca_risk_multiplier"`
	HasFixedLeverage     bool    `gorm:"column:has_fixed_leverage;default:false" json:"has_fixed_leverage"`
	FixedLeverage        int     `gorm:"column:fixed_leverage;default:0" json:"fixed_leverage"`
	HasAllowedSymbols    bool    `gorm:"column:has_allowed_symbols;default:false" json:"has_allowed_symbols"`
	AllowedSymbols       string  `gorm:"column:allowed_symbols;default:''" json:"allowed_symbols"`
	HasDedupEnabled      bool    `gorm:"column:has_dedup_enabled;default:false" json:"has_dedup_enabled"`
	DedupEnabled         bool    `gorm:"column:dedup_enabled;default:false" json:"dedup_enabled"`
	HasDefaultSymbol     bool    `gorm:"column:has_default_symbol;default:false" json:"has_default_symbol"`
	DefaultSymbol        string  `gorm:"column:default_symbol;default:''" json:"default_symbol"`
	Enabled              bool    `gorm:"column:enabled;default:true" json:"enabled"`
	AutoTradeEnabled     bool    `gorm:"column:auto_trade_enabled;default:true" json:"auto_trade_enabled"`
	APIKey               string  `gorm:"column:api_key;default:''" json:"api_key"`
	APISecret            string  `gorm:"column:api_secret;default:''" json:"api_secret"`
}

func (TenantTradeConfig) TableName() string { return "bridge_tenant_trade_config" }
