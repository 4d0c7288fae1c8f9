package stream

import (
	"fmt"
	"strings"
	"time"

	"tradebridge/logger"
	"tradebridge/notify"
)

const maxReconnectAttempts = 20

// keepAliveLoop refreshes the listen key on a 30-minute cadence (§4.2.1 step
// 3). A 400/401 response means Binance has already invalidated the key, so
// it forces an immediate reconnect rather than waiting for the read loop to
// notice a dropped socket.
func (r *Reconciler) keepAliveLoop() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.mu.Lock()
			listenKey := r.listenKey
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}

			client := r.currentClient()
			if client == nil {
				continue
			}

			if err := client.KeepAliveListenKey(listenKey); err != nil {
				logger.Warnf("listen key keepalive failed for tenant %q: %v", r.tenantID, err)
				if isAuthRejection(err) {
					r.scheduleReconnect()
				}
			}
		}
	}
}

func isAuthRejection(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "400") || strings.Contains(msg, "401")
}

// scheduleReconnect implements §4.2.4: a per-tenant attempt counter, a
// deduplicated pending timer, the min(1000*2^(n-1), 60000)ms backoff, and a
// 20-attempt ceiling that raises one critical alert and then gives up.
func (r *Reconciler) scheduleReconnect() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	if r.reconnectTimer != nil {
		r.reconnectTimer.Stop()
	}
	r.attempts++
	attempts := r.attempts
	alertSent := r.alertSent
	r.mu.Unlock()

	if attempts > maxReconnectAttempts {
		if !alertSent {
			r.sink.Notify(r.tenantID, "Stream reconnect exhausted",
				fmt.Sprintf("tenant %q exceeded %d reconnect attempts; the stream is down until restarted manually", r.tenantID, maxReconnectAttempts),
				notify.SeverityCritical)
			r.mu.Lock()
			r.alertSent = true
			r.mu.Unlock()
		}
		return
	}

	delayMs := int64(1000) << uint(attempts-1)
	if delayMs > 60000 || delayMs <= 0 {
		delayMs = 60000
	}
	delay := time.Duration(delayMs) * time.Millisecond

	r.mu.Lock()
	r.reconnectTimer = time.AfterFunc(delay, r.doReconnect)
	r.mu.Unlock()
}

// doReconnect tears down the stale connection and listen key, then re-reads
// the tenant's current credentials from the pool before reconnecting — they
// may have been rotated since the stream was first started.
func (r *Reconciler) doReconnect() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.selfInitiated = true
	oldConn := r.conn
	oldListenKey := r.listenKey
	attempts := r.attempts
	r.mu.Unlock()

	if oldConn != nil {
		oldConn.Close()
	}
	if oldListenKey != "" {
		if client := r.currentClient(); client != nil {
			if err := client.DeleteListenKey(oldListenKey); err != nil {
				logger.Warnf("delete stale listen key for tenant %q: %v", r.tenantID, err)
			}
		}
	}

	client := r.currentClient()
	if client == nil {
		logger.Warnf("no exchange credentials bound for tenant %q; reconnect deferred", r.tenantID)
		r.scheduleReconnect()
		return
	}

	listenKey, err := client.CreateListenKey()
	if err != nil {
		logger.Warnf("recreate listen key for tenant %q: %v", r.tenantID, err)
		r.scheduleReconnect()
		return
	}

	r.mu.Lock()
	r.listenKey = listenKey
	r.mu.Unlock()

	logger.Infof("reconnecting stream for tenant %q (attempt %d)", r.tenantID, attempts)
	r.connect()
}
