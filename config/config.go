// Package config loads process-wide configuration from the environment
// (.env via godotenv, then real env vars override) into a single global
// Config, the way the teacher's config package does.
package config

import (
	"os"
	"strconv"
	"strings"
)

var global *Config

// Config is the global, process-wide configuration. Per-trade risk
// parameters live here only as the *global* defaults consumed by
// riskconfig.Resolver; a multi-tenant override lives in store.TenantTradeConfig.
type Config struct {
	// Service
	APIServerPort int
	JWTSecret     string

	// Multi-tenant mode toggle
	MultiTenant bool

	// Database
	DBType     string // sqlite or postgres
	DBPath     string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Exchange credentials (single-tenant mode)
	BinanceAPIKey    string
	BinanceSecretKey string
	BinanceBaseURL   string // override for testing against a mock server

	// Telegram notification sink
	TelegramBotToken string
	TelegramChatID   int64

	// Intake auth
	IntakeBearerToken string

	// Global trade defaults (see riskconfig.Resolver)
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

// Init populates the global configuration from environment variables,
// applying defaults first.
func Init() {
	cfg := &Config{
		APIServerPort: 8090,
		DBType:        "sqlite",
		DBPath:        "data/data.db",
		DBHost:        "localhost",
		DBPort:        5432,
		DBUser:        "postgres",
		DBName:        "tradebridge",
		DBSSLMode:     "disable",

		BinanceBaseURL: "https://fapi.binance.com",

		RiskPercent:       0.02,
		MaxPositionUsdt:   0,
		MaxDailyLossUsdt:  0,
		MaxDcaPerSymbol:   3,
		DcaRiskMultiplier: 1,
		FixedLeverage:     10,
		DedupEnabled:      true,
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = strings.TrimSpace(v)
	}
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "default-jwt-secret-change-in-production"
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}

	cfg.MultiTenant = strings.ToLower(os.Getenv("MULTI_TENANT")) == "true"

	if v := os.Getenv("DB_TYPE"); v != "" {
		cfg.DBType = strings.ToLower(v)
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DBHost = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.DBPort = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DBUser = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DBPassword = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DBName = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.DBSSLMode = v
	}

	cfg.BinanceAPIKey = os.Getenv("BINANCE_API_KEY")
	cfg.BinanceSecretKey = os.Getenv("BINANCE_SECRET_KEY")
	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.BinanceBaseURL = v
	}

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TelegramChatID = id
		}
	}

	cfg.IntakeBearerToken = os.Getenv("INTAKE_BEARER_TOKEN")

	if v := os.Getenv("RISK_PERCENT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.RiskPercent = f
		}
	}
	if v := os.Getenv("MAX_POSITION_USDT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.MaxPositionUsdt = f
		}
	}
	if v := os.Getenv("MAX_DAILY_LOSS_USDT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			cfg.MaxDailyLossUsdt = f
		}
	}
	if v := os.Getenv("MAX_DCA_PER_SYMBOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxDcaPerSymbol = n
		}
	}
	if v := os.Getenv("DCA_RISK_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.DcaRiskMultiplier = f
		}
	}
	if v := os.Getenv("FIXED_LEVERAGE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.FixedLeverage = n
		}
	}
	if v := os.Getenv("ALLOWED_SYMBOLS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			s = strings.ToUpper(strings.TrimSpace(s))
			if s != "" {
				cfg.AllowedSymbols = append(cfg.AllowedSymbols, s)
			}
		}
	}
	if v := os.Getenv("DEDUP_ENABLED"); v != "" {
		cfg.DedupEnabled = strings.ToLower(v) != "false"
	}
	cfg.DefaultSymbol = os.Getenv("DEFAULT_SYMBOL")

	global = cfg
}

// Get returns the global configuration, initializing it from the
// environment on first use.
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
