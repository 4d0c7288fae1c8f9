// Command bridge is the trade-bridge entrypoint: it loads configuration,
// opens the store, wires the execution engine, the stream reconciler(s) and
// the signal intake server, then blocks until an interrupt signal.
package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"tradebridge/auth"
	"tradebridge/config"
	"tradebridge/dedup"
	"tradebridge/engine"
	"tradebridge/fanout"
	"tradebridge/intake"
	"tradebridge/lock"
	"tradebridge/logger"
	"tradebridge/notify"
	"tradebridge/riskconfig"
	"tradebridge/store"
	"tradebridge/stream"
	"tradebridge/trader"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := logger.Init(nil); err != nil {
		panic(err)
	}

	logger.Info("╔════════════════════════════════════════════════════════════╗")
	logger.Info("║              Trade Bridge - Signal Execution Engine          ║")
	logger.Info("╚════════════════════════════════════════════════════════════╝")

	config.Init()
	cfg := config.Get()
	logger.Info("configuration loaded")

	if len(os.Args) > 1 {
		cfg.DBPath = os.Args[1]
	}
	if cfg.DBType == "sqlite" {
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				logger.Errorf("failed to create data directory: %v", err)
			}
		}
	}

	dbType := store.DBTypeSQLite
	if cfg.DBType == "postgres" {
		dbType = store.DBTypePostgres
	}
	st, err := store.NewWithConfig(store.DBConfig{
		Type:     dbType,
		Path:     cfg.DBPath,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	defer st.Close()

	auth.SetJWTSecret(cfg.JWTSecret)
	logger.Info("JWT secret configured")

	binanceBaseURL := cfg.BinanceBaseURL
	if binanceBaseURL == "https://fapi.binance.com" {
		binanceBaseURL = ""
	}
	traders := trader.NewPool(binanceBaseURL)
	locks := lock.NewRegistry()
	dedupCache := dedup.NewCache()
	resolver := riskconfig.NewResolver(st.Config())

	var sink notify.Sink = notify.NoopSink{}
	if cfg.TelegramBotToken != "" {
		telegramSink, err := notify.NewTelegramSink(cfg.TelegramBotToken, cfg.TelegramChatID, cfg.MultiTenant, st.Config())
		if err != nil {
			logger.Warnf("telegram sink unavailable, notifications disabled: %v", err)
		} else {
			sink = telegramSink
			logger.Info("telegram notification sink configured")
		}
	}

	eng := engine.New(st, traders, locks, dedupCache, resolver, sink, cfg.MultiTenant)
	streamManager := stream.NewManager(st, traders, locks, sink, wsBaseURL(cfg))

	var broadcaster *fanout.Broadcaster
	if cfg.MultiTenant {
		broadcaster = fanout.NewBroadcaster(st.Config(), eng.Dispatch)
		broadcaster.SetDedupCheck(eng.CheckGlobalDedup)

		tenants, err := st.Config().ListEligibleTenants()
		if err != nil {
			logger.Fatalf("failed to list eligible tenants: %v", err)
		}
		for _, t := range tenants {
			traders.Bind(t.TenantID, t.APIKey, t.APISecret)
			streamManager.Add(t.TenantID)
			logger.Infof("tenant %s bound and registered for stream reconciliation", t.TenantID)
		}
	} else {
		traders.Bind("", cfg.BinanceAPIKey, cfg.BinanceSecretKey)
		streamManager.Add("")
	}

	streamManager.StartAll()
	logger.Info("stream reconciler(s) started")

	intakeServer := intake.New(eng, broadcaster, cfg.MultiTenant, cfg.IntakeBearerToken, cfg.APIServerPort)
	go func() {
		if err := intakeServer.Start(); err != nil {
			logger.Fatalf("failed to start signal intake server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("system started, waiting for trading signals")
	<-quit
	logger.Info("shutdown signal received, closing system")

	if err := intakeServer.Shutdown(); err != nil {
		logger.Errorf("intake server shutdown: %v", err)
	}
	streamManager.StopAll()
	logger.Info("system shut down safely")
}

// wsBaseURL derives the user-data-stream websocket base from the configured
// REST base, matching Binance's fapi/fstream host pairing. It returns the
// bare "<scheme>://<host>/ws" prefix Reconciler.connect appends "/<listenKey>"
// to directly, per §6.3's "<wsBase>/<listenKey>".
func wsBaseURL(cfg *config.Config) string {
	if cfg.BinanceBaseURL == "https://fapi.binance.com" || cfg.BinanceBaseURL == "" {
		return "wss://fstream.binance.com/ws"
	}
	return "wss://stream.binancefuture.com/ws"
}
