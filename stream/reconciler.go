// Package stream implements the per-tenant stream reconciler (§4.2): a
// durable subscription to the exchange's user-data WebSocket that turns
// ORDER_TRADE_UPDATE events for protective orders into Trade/TradeEvent
// writes and notifications, without any REST polling.
package stream

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"tradebridge/lock"
	"tradebridge/logger"
	"tradebridge/notify"
	"tradebridge/store"
	"tradebridge/trader"
)

// Reconciler owns one tenant's listen key and WebSocket connection. tenantID
// == "" addresses the single-tenant stream.
type Reconciler struct {
	tenantID string
	traders  *trader.Pool
	store    *store.Store
	locks    *lock.Registry
	sink     notify.Sink
	wsBase   string

	mu            sync.Mutex
	conn          *websocket.Conn
	listenKey     string
	running       bool
	selfInitiated bool
	stopCh        chan struct{}
	lastMessageAt time.Time

	attempts       int
	alertSent      bool
	reconnectTimer *time.Timer
}

// NewReconciler builds a reconciler for one tenant. wsBase is the exchange's
// user-data-stream base URL, including its "/ws" path segment (e.g.
// "wss://fstream.binance.com/ws"); connect appends "/<listenKey>" to it
// directly, per §6.3's "<wsBase>/<listenKey>".
func NewReconciler(tenantID string, traders *trader.Pool, st *store.Store, locks *lock.Registry, sink notify.Sink, wsBase string) *Reconciler {
	return &Reconciler{
		tenantID: tenantID,
		traders:  traders,
		store:    st,
		locks:    locks,
		sink:     sink,
		wsBase:   wsBase,
		stopCh:   make(chan struct{}),
	}
}

func (r *Reconciler) currentClient() *trader.Client {
	return r.traders.Get(r.tenantID)
}

// Start creates the listen key and begins the connect/keepalive goroutines.
// Idempotent: calling Start on an already-running reconciler is a no-op.
func (r *Reconciler) Start() error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = true
	r.mu.Unlock()

	client := r.currentClient()
	if client == nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return fmt.Errorf("stream: no exchange credentials bound for tenant %q", r.tenantID)
	}

	listenKey, err := client.CreateListenKey()
	if err != nil {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		return err
	}

	r.mu.Lock()
	r.listenKey = listenKey
	r.mu.Unlock()

	go r.connect()
	go r.keepAliveLoop()

	logger.Infof("stream reconciler started for tenant %q", r.tenantID)
	return nil
}

// Stop marks the context as intentionally closing, closes the connection
// with normal status, and deletes the listen key (§4.2.1 step 6).
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.selfInitiated = true
	conn := r.conn
	listenKey := r.listenKey
	if r.reconnectTimer != nil {
		r.reconnectTimer.Stop()
	}
	close(r.stopCh)
	r.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	if listenKey != "" {
		if client := r.currentClient(); client != nil {
			if err := client.DeleteListenKey(listenKey); err != nil {
				logger.Warnf("delete listen key for tenant %q: %v", r.tenantID, err)
			}
		}
	}

	logger.Infof("stream reconciler stopped for tenant %q", r.tenantID)
}

// IsRunning reports whether the reconciler believes it should be connected.
func (r *Reconciler) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reconciler) connect() {
	r.mu.Lock()
	listenKey := r.listenKey
	r.mu.Unlock()

	wsURL := r.wsBase + "/" + listenKey

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		logger.Warnf("stream connect failed for tenant %q: %v", r.tenantID, err)
		r.scheduleReconnect()
		return
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	logger.Infof("stream connected for tenant %q", r.tenantID)
	r.readLoop(conn)
}

func (r *Reconciler) readLoop(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			r.mu.Lock()
			self := r.selfInitiated
			running := r.running
			r.selfInitiated = false
			r.mu.Unlock()

			if self || !running {
				return
			}

			logger.Warnf("stream read error for tenant %q: %v", r.tenantID, err)
			r.scheduleReconnect()
			return
		}

		r.mu.Lock()
		r.lastMessageAt = time.Now()
		if r.attempts > 0 {
			r.attempts = 0
			r.alertSent = false
		}
		r.mu.Unlock()

		r.handleMessage(message)
	}
}

func (r *Reconciler) handleMessage(message []byte) {
	var base struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		logger.Warnf("stream message parse failed for tenant %q: %v", r.tenantID, err)
		return
	}

	switch base.EventType {
	case "ORDER_TRADE_UPDATE":
		r.handleOrderTradeUpdate(message)
	case "listenKeyExpired":
		logger.Warnf("listen key expired for tenant %q", r.tenantID)
		r.scheduleReconnect()
	default:
		// ACCOUNT_UPDATE, MARGIN_CALL, etc. carry no reconciliation meaning here.
		logger.Debugf("stream event %q ignored for tenant %q", base.EventType, r.tenantID)
	}
}

// orderTradeUpdateEvent mirrors the relevant fields of Binance's
// ORDER_TRADE_UPDATE payload (§6.3).
type orderTradeUpdateEvent struct {
	EventType string               `json:"e"`
	EventTime int64                `json:"E"`
	Order     orderTradeUpdateData `json:"o"`
}

type orderTradeUpdateData struct {
	Symbol          string  `json:"s"`
	ClientOrderID   string  `json:"c"`
	Side            string  `json:"S"`
	OrderType       string  `json:"o"`
	ExecutionType   string  `json:"x"`
	OrderStatus     string  `json:"X"`
	OrderID         int64   `json:"i"`
	OrigQty         float64 `json:"q,string"`
	AvgPrice        float64 `json:"ap,string"`
	FilledQty       float64 `json:"z,string"`
	LastFilledQty   float64 `json:"l,string"`
	LastFilledPrice float64 `json:"L,string"`
	CommissionAsset string  `json:"N"`
	Commission      float64 `json:"n,string"`
	RealizedProfit  float64 `json:"rp,string"`
	TradeTime       int64   `json:"T"`
}

func (r *Reconciler) handleOrderTradeUpdate(message []byte) {
	var event orderTradeUpdateEvent
	if err := json.Unmarshal(message, &event); err != nil {
		logger.Warnf("order update parse failed for tenant %q: %v", r.tenantID, err)
		return
	}

	o := event.Order
	isSL := o.OrderType == "STOP_MARKET"
	isTP := o.OrderType == "TAKE_PROFIT_MARKET"
	if !isSL && !isTP {
		return
	}

	switch o.OrderStatus {
	case "FILLED":
		exitReason := "TP_TRIGGERED"
		if isSL {
			exitReason = "SL_TRIGGERED"
		}
		r.reconciliationClose(o.Symbol, o, exitReason)

	case "PARTIALLY_FILLED":
		eventType := "TP_PARTIAL_FILL"
		if isSL {
			eventType = "SL_PARTIAL_FILL"
		}
		r.appendLegEvent(o.Symbol, eventType, o, true)
		r.sink.Notify(r.tenantID, fmt.Sprintf("%s %s", o.Symbol, eventType),
			fmt.Sprintf("partial fill %.8f @ %.8f", o.LastFilledQty, o.LastFilledPrice), notify.SeverityInfo)

	case "CANCELED", "EXPIRED":
		eventType := "TP_LOST"
		severity := notify.SeverityWarning
		if isSL {
			eventType = "SL_LOST"
			severity = notify.SeverityCritical
		}
		r.appendLegEvent(o.Symbol, eventType, o, false)
		r.sink.Notify(r.tenantID, fmt.Sprintf("%s %s", o.Symbol, eventType),
			fmt.Sprintf("protective order was %s with no compensation", strings.ToLower(o.OrderStatus)), severity)

	default:
		logger.Debugf("order update %s/%s ignored for tenant %q", o.OrderStatus, o.OrderType, r.tenantID)
	}
}

func (r *Reconciler) appendLegEvent(symbol, eventType string, o orderTradeUpdateData, success bool) {
	trade, err := r.store.Trade().FindOpenTrade(nil, r.tenantID, symbol)
	if err != nil || trade == nil {
		return
	}
	if err := r.store.Event().Append(nil, &store.TradeEvent{
		TradeID: trade.ID, EventType: eventType, ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
		Price: o.AvgPrice, Quantity: o.LastFilledQty, Success: success,
	}); err != nil {
		logger.Warnf("persist %s for %s: %v", eventType, symbol, err)
	}
}

// reconciliationClose implements §4.2.3 under the shared per-symbol lock.
func (r *Reconciler) reconciliationClose(symbol string, o orderTradeUpdateData, exitReason string) {
	r.locks.Lock(symbol)
	defer r.locks.Unlock(symbol)

	trade, err := r.store.Trade().FindOpenTrade(nil, r.tenantID, symbol)
	if err != nil {
		logger.Warnf("find open trade for reconciliation close on %s: %v", symbol, err)
		return
	}
	if trade == nil {
		logger.Warnf("reconciliation close for %s: no open trade found", symbol)
		return
	}

	effectiveQty := trade.RemainingQuantity
	if effectiveQty == 0 {
		effectiveQty = trade.EntryQuantity
	}

	exitQty := o.FilledQty
	commission := o.Commission
	if o.CommissionAsset != "" && o.CommissionAsset != "USDT" {
		commission = o.AvgPrice * exitQty * 0.0004
	}

	if exitQty < effectiveQty*0.999 {
		if err := r.store.Transaction(func(tx *gorm.DB) error {
			if err := r.store.Trade().PartialClose(tx, trade.ID, exitQty, commission); err != nil {
				return err
			}
			return r.store.Event().Append(tx, &store.TradeEvent{
				TradeID: trade.ID, EventType: "STREAM_PARTIAL_CLOSE", ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
				Price: o.AvgPrice, Quantity: exitQty, Success: true,
			})
		}); err != nil {
			logger.Warnf("persist stream partial close for %s: %v", symbol, err)
		}
		r.sink.Notify(r.tenantID, fmt.Sprintf("%s partial close via %s", symbol, exitReason),
			fmt.Sprintf("filled %.8f of %.8f remaining", exitQty, effectiveQty), notify.SeverityInfo)
		return
	}

	if err := r.store.Transaction(func(tx *gorm.DB) error {
		if _, _, err := r.store.Trade().FullClose(tx, trade.ID, strconv.FormatInt(o.OrderID, 10), exitReason, o.AvgPrice, exitQty, commission); err != nil {
			return err
		}
		return r.store.Event().Append(tx, &store.TradeEvent{
			TradeID: trade.ID, EventType: "STREAM_CLOSE", ExchangeOrderID: strconv.FormatInt(o.OrderID, 10),
			Price: o.AvgPrice, Quantity: exitQty, Success: true,
		})
	}); err != nil {
		logger.Warnf("persist stream close for %s: %v", symbol, err)
	}

	r.sink.Notify(r.tenantID, fmt.Sprintf("%s closed via %s", symbol, exitReason),
		fmt.Sprintf("filled %.8f @ %.8f", exitQty, o.AvgPrice), notify.SeverityInfo)
}
