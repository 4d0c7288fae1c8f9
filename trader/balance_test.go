package trader

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBalance_ParsesAccountResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(http.StatusOK, map[string]interface{}{
			"totalWalletBalance":    "10000.00",
			"availableBalance":      "8000.00",
			"totalUnrealizedProfit": "100.50",
		})(w, r)
	})

	bal, err := c.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 10000.0, bal.TotalWalletBalance)
	assert.Equal(t, 8000.0, bal.AvailableBalance)
	assert.Equal(t, 100.5, bal.TotalUnrealizedProfit)
}

func TestGetBalance_CachesWithinCacheDuration(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		jsonHandler(http.StatusOK, map[string]interface{}{
			"totalWalletBalance": "1.00", "availableBalance": "1.00", "totalUnrealizedProfit": "0",
		})(w, r)
	})
	c.cacheDuration = time.Minute

	_, err := c.GetBalance()
	require.NoError(t, err)
	_, err = c.GetBalance()
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "a second call within cacheDuration must not re-query the venue")
}

func TestGetBalance_ExchangeErrorWrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.GetBalance()
	require.Error(t, err)
}

func TestGetPositions_FiltersZeroQuantity(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(http.StatusOK, []map[string]interface{}{
			{
				"symbol": "BTCUSDT", "positionAmt": "0.5", "entryPrice": "50000.00",
				"markPrice": "50500.00", "unRealizedProfit": "250.00",
				"liquidationPrice": "45000.00", "leverage": "10",
			},
			{
				"symbol": "ETHUSDT", "positionAmt": "0", "entryPrice": "0",
				"markPrice": "0", "unRealizedProfit": "0",
				"liquidationPrice": "0", "leverage": "10",
			},
		})(w, r)
	})

	positions, err := c.GetPositions()
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTCUSDT", positions[0].Symbol)
	assert.Equal(t, 0.5, positions[0].Quantity)
}

func TestGetPosition_ReturnsZeroQuantityWhenFlat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(http.StatusOK, []map[string]interface{}{})(w, r)
	})
	pos, err := c.GetPosition("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", pos.Symbol)
	assert.Equal(t, 0.0, pos.Quantity)
}

func TestGetMarketPrice_ParsesSinglePrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(http.StatusOK, []map[string]interface{}{
			{"symbol": "BTCUSDT", "price": "50000.00"},
		})(w, r)
	})
	price, err := c.GetMarketPrice("BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.0, price)
}

func TestGetMarketPrice_EmptyResultIsError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		jsonHandler(http.StatusOK, []map[string]interface{}{})(w, r)
	})
	_, err := c.GetMarketPrice("BTCUSDT")
	require.Error(t, err)
}
