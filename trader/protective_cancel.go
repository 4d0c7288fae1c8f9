package trader

import (
	"context"

	"github.com/adshao/go-binance/v2/futures"

	"tradebridge/bridgeerr"
)

// CancelStopLossOrders cancels only resting stop-loss Algo orders on symbol,
// leaving take-profit orders untouched — used by DCA (§4.1.4) together with
// CancelTakeProfitOrders, so resting LIMIT entries are not disturbed.
func (c *Client) CancelStopLossOrders(symbol string) error {
	return c.cancelAlgoOrdersOfType(symbol, futures.AlgoOrderTypeStopMarket)
}

// CancelTakeProfitOrders cancels only resting take-profit Algo orders on
// symbol, leaving the stop-loss untouched.
func (c *Client) CancelTakeProfitOrders(symbol string) error {
	return c.cancelAlgoOrdersOfType(symbol, futures.AlgoOrderTypeTakeProfitMarket)
}

func (c *Client) cancelAlgoOrdersOfType(symbol string, orderType futures.AlgoOrderType) error {
	orders, err := c.api.NewListOpenAlgoOrdersService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "list open algo orders", err)
	}

	var lastErr error
	for _, o := range orders {
		if o.OrderType != orderType {
			continue
		}
		if _, err := c.api.NewCancelAlgoOrderService().AlgoID(o.AlgoId).Do(context.Background()); err != nil {
			lastErr = err
		}
	}
	if lastErr != nil {
		return bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, "cancel "+string(orderType)+" orders", lastErr)
	}
	return nil
}
