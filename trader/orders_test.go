package trader

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientOrderID_CarriesPrefixAndIsBounded(t *testing.T) {
	id := NewClientOrderID("SL")
	assert.Contains(t, id, "SL-")
	assert.LessOrEqual(t, len(id), 36)
}

func TestPlaceLimitEntry_Success(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"orderId": 12345, "symbol": "BTCUSDT"})
	})

	result, err := c.PlaceLimitEntry("BTCUSDT", SideBuy, 1, 100)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "ENTRY", result.Step)
	assert.Equal(t, "12345", result.OrderID)
}

func TestPlaceMarketOrder_ReduceOnlyFailSafeFlatten(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"orderId": 1, "symbol": "BTCUSDT"})
	})
	result, err := c.PlaceMarketOrder("BTCUSDT", SideSell, 1, true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "MARKET", result.Type)
}

func TestPlaceOrder_VenueErrorIsFailed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": -2019, "msg": "Margin is insufficient."})
	})
	result, err := c.PlaceLimitEntry("BTCUSDT", SideBuy, 1, 100)
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestProtectiveOrderType(t *testing.T) {
	assert.Equal(t, "STOP_MARKET", string(protectiveOrderType("SL")))
	assert.Equal(t, "TAKE_PROFIT_MARKET", string(protectiveOrderType("TP")))
}

func TestPlaceProtectiveOrder_SucceedsFirstAttempt(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"algoId": 999, "symbol": "BTCUSDT"})
	})

	result, err := c.PlaceProtectiveOrder("BTCUSDT", SideBuy, "SL", 90)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "SL", result.Step)
}

// TestPlaceProtectiveOrder_RetriesOnNetworkFailureThenSucceeds patches
// time.Sleep to a no-op so the 1s/3s backoffs described in §4.1.6 don't slow
// the test down, then verifies that two transport failures are retried and
// the third attempt returns success once the transient failure clears.
func TestPlaceProtectiveOrder_RetriesOnNetworkFailureThenSucceeds(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Sleep, func(time.Duration) {})
	defer patches.Reset()

	var attempts int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			// connection reset mid-request: close without writing a response,
			// which the SDK surfaces as a transport error, not *futures.APIError.
			hj, ok := w.(http.Hijacker)
			if !ok {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"algoId": 1, "symbol": "BTCUSDT"})
	})

	result, err := c.PlaceProtectiveOrder("BTCUSDT", SideBuy, "SL", 90)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestPlaceProtectiveOrder_ExhaustsRetriesOnPersistentNetworkFailure(t *testing.T) {
	patches := gomonkey.ApplyFunc(time.Sleep, func(time.Duration) {})
	defer patches.Reset()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hj, _ := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	})

	result, err := c.PlaceProtectiveOrder("BTCUSDT", SideBuy, "TP", 110)
	require.Error(t, err)
	assert.False(t, result.Success)
}

func TestPlaceProtectiveOrder_VenueErrorDoesNotRetry(t *testing.T) {
	var attempts int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"code": -2021, "msg": "Order would trigger immediately."})
	})

	_, err := c.PlaceProtectiveOrder("BTCUSDT", SideBuy, "SL", 90)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts), "a parsed venue error envelope must not be retried")
}

func TestIsNetworkLayerFailure(t *testing.T) {
	assert.False(t, isNetworkLayerFailure(nil))
	assert.True(t, isNetworkLayerFailure(assert.AnError))
}
