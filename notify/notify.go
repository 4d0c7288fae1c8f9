// Package notify implements the fire-and-forget operational-event sink
// (§4.7): circuit-breaker trips, fail-safe engagement, lost protective
// orders, stream disconnects, reconnect exhaustion. In single-tenant mode
// every alert goes to one configured chat; in multi-tenant mode it is
// tenant-addressable, resolving the destination chat id from the tenant's
// persisted configuration.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tradebridge/logger"
	"tradebridge/store"
)

// Severity classifies an alert for the purpose of choosing an emoji/prefix;
// it carries no other behavior.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Sink is the notification destination the engine, reconciler, and fan-out
// packages depend on. A failure to deliver must never propagate to the
// caller — every implementation is expected to log and swallow.
type Sink interface {
	Notify(tenantID, title, body string, severity Severity)
}

// TelegramSink delivers alerts over a single Telegram bot. multiTenant
// selects whether the destination chat id is the fixed defaultChatID or
// resolved per tenant from the persisted TenantTradeConfig.
type TelegramSink struct {
	api          *tgbotapi.BotAPI
	defaultChatID int64
	multiTenant  bool
	cfgStore     *store.ConfigStore
}

// NewTelegramSink creates a sink bound to one bot token. cfgStore may be nil
// in single-tenant mode, where every alert goes to defaultChatID.
func NewTelegramSink(botToken string, defaultChatID int64, multiTenant bool, cfgStore *store.ConfigStore) (*TelegramSink, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Infof("telegram notification sink initialized (bot=%s)", api.Self.UserName)
	return &TelegramSink{api: api, defaultChatID: defaultChatID, multiTenant: multiTenant, cfgStore: cfgStore}, nil
}

func severityPrefix(severity Severity) string {
	switch severity {
	case SeverityCritical:
		return "🔴 CRITICAL"
	case SeverityWarning:
		return "🟡 WARNING"
	default:
		return "ℹ️ INFO"
	}
}

// Notify sends one alert. Delivery failures are logged, never returned —
// matching §4.7's "failures must never propagate into the caller's control
// flow".
func (t *TelegramSink) Notify(tenantID, title, body string, severity Severity) {
	chatID := t.resolveChatID(tenantID)
	if chatID == 0 {
		logger.Warnf("notify: no chat id resolved for tenant %q, dropping alert %q", tenantID, title)
		return
	}

	text := fmt.Sprintf("%s\n\n*%s*\n%s", severityPrefix(severity), title, body)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := t.api.Send(msg); err != nil {
		logger.Errorf("notify: telegram send failed: %v", err)
	}
}

func (t *TelegramSink) resolveChatID(tenantID string) int64 {
	if !t.multiTenant || tenantID == "" {
		return t.defaultChatID
	}
	if t.cfgStore == nil {
		return t.defaultChatID
	}
	override, err := t.cfgStore.GetTenantOverride(tenantID)
	if err != nil || override == nil || override.ChatID == 0 {
		return t.defaultChatID
	}
	return override.ChatID
}

// NoopSink discards every alert; used by tests and by process start before
// a real sink is configured.
type NoopSink struct{}

func (NoopSink) Notify(tenantID, title, body string, severity Severity) {}
