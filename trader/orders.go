package trader

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"tradebridge/bridgeerr"
)

// NewClientOrderID builds a caller-generated order id of the form
// <PREFIX>-<epochMillis>-<rand16hex>, PREFIX ∈ {SL, TP}, used for the
// idempotent protective-order placement in §4.1.6.
func NewClientOrderID(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	id := fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), hex.EncodeToString(buf))
	if len(id) > 36 {
		id = id[:36]
	}
	return id
}

// PlaceLimitEntry places a GTC limit entry order. side = BUY opens long,
// SELL opens short.
func (c *Client) PlaceLimitEntry(symbol string, side Side, qty, price float64) (OrderResult, error) {
	qtyStr, err := c.FormatQuantity(symbol, qty)
	if err != nil {
		return Failed("ENTRY", err), err
	}
	priceStr, err := c.FormatPrice(symbol, price)
	if err != nil {
		return Failed("ENTRY", err), err
	}

	order, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		Quantity(qtyStr).
		Price(priceStr).
		Do(context.Background())
	if err != nil {
		wrapped := bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, "place limit entry", err)
		return Failed("ENTRY", wrapped), wrapped
	}

	return OrderResult{
		Step: "ENTRY", Success: true, Symbol: symbol, Side: side, Type: "LIMIT",
		OrderID: fmt.Sprintf("%d", order.OrderID), Price: price, Quantity: qty,
	}, nil
}

// PlaceMarketOrder places a market order, optionally reduce-only (used for
// the fail-safe flatten on SL-placement failure).
func (c *Client) PlaceMarketOrder(symbol string, side Side, qty float64, reduceOnly bool) (OrderResult, error) {
	qtyStr, err := c.FormatQuantity(symbol, qty)
	if err != nil {
		return Failed("MARKET", err), err
	}

	svc := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(qtyStr)
	if reduceOnly {
		svc = svc.ReduceOnly(true)
	}

	order, err := svc.Do(context.Background())
	if err != nil {
		wrapped := bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, "place market order", err)
		return Failed("MARKET", wrapped), wrapped
	}

	return OrderResult{
		Step: "MARKET", Success: true, Symbol: symbol, Side: side, Type: "MARKET",
		OrderID: fmt.Sprintf("%d", order.OrderID), Quantity: qty,
	}, nil
}

// PlaceLimitClose places a reduce-only limit order used by CLOSE (mark ±
// 0.1% per §4.1.5).
func (c *Client) PlaceLimitClose(symbol string, side Side, qty, price float64) (OrderResult, error) {
	qtyStr, err := c.FormatQuantity(symbol, qty)
	if err != nil {
		return Failed("CLOSE", err), err
	}
	priceStr, err := c.FormatPrice(symbol, price)
	if err != nil {
		return Failed("CLOSE", err), err
	}

	order, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeLimit).
		TimeInForce(futures.TimeInForceTypeGTC).
		ReduceOnly(true).
		Quantity(qtyStr).
		Price(priceStr).
		Do(context.Background())
	if err != nil {
		wrapped := bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, "place limit close", err)
		return Failed("CLOSE", wrapped), wrapped
	}

	return OrderResult{
		Step: "CLOSE", Success: true, Symbol: symbol, Side: side, Type: "LIMIT",
		OrderID: fmt.Sprintf("%d", order.OrderID), Price: price, Quantity: qty,
	}, nil
}

// placeProtectiveOnce sends a single STOP_MARKET/TAKE_PROFIT_MARKET,
// reduce-only, close-on-trigger order with the given client order id, via
// the Algo Order endpoint — v2.8.9 of the SDK migrated stop/take-profit
// placement there (the regular order endpoint's STOP_MARKET/
// TAKE_PROFIT_MARKET constants were removed in this version). It does not
// retry; see PlaceProtectiveOrder for the idempotent wrapper.
func (c *Client) placeProtectiveOnce(symbol string, side Side, orderType futures.AlgoOrderType, triggerPrice float64, clientOrderID string) (OrderResult, error) {
	priceStr, err := c.FormatPrice(symbol, triggerPrice)
	if err != nil {
		return Failed(string(orderType), err), err
	}

	order, err := c.api.NewCreateAlgoOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(orderType).
		TriggerPrice(priceStr).
		WorkingType(futures.WorkingTypeContractPrice).
		ClosePosition(true).
		ClientAlgoId(clientOrderID).
		Do(context.Background())
	if err != nil {
		return OrderResult{Step: string(orderType), Success: false, ClientOrderID: clientOrderID, ErrorMessage: err.Error()}, err
	}

	return OrderResult{
		Step: string(orderType), Success: true, Symbol: symbol, Side: side, Type: string(orderType),
		OrderID: fmt.Sprintf("%d", order.AlgoId), ClientOrderID: clientOrderID, StopPrice: triggerPrice,
	}, nil
}

// protectiveOrderType maps the §4.1.6 PREFIX to the Binance algo order type:
// SL -> STOP_MARKET, TP -> TAKE_PROFIT_MARKET.
func protectiveOrderType(prefix string) futures.AlgoOrderType {
	if prefix == "SL" {
		return futures.AlgoOrderTypeStopMarket
	}
	return futures.AlgoOrderTypeTakeProfitMarket
}

// PlaceProtectiveOrder implements §4.1.6's idempotent protective-order
// placement: up to 3 attempts total with 1s/3s backoffs, retrying only on
// network-layer failures (the retry loop stops the instant any HTTP
// response — including an error envelope — comes back). The same
// clientOrderID is reused across attempts so a retry racing with an already
// -accepted send cannot create a duplicate order.
func (c *Client) PlaceProtectiveOrder(symbol string, positionSide Side, prefix string, triggerPrice float64) (OrderResult, error) {
	side := OppositeOf(positionSide)
	orderType := protectiveOrderType(prefix)
	clientOrderID := NewClientOrderID(prefix)

	backoffs := []time.Duration{0, time.Second, 3 * time.Second}

	var lastErr error
	for attempt, wait := range backoffs {
		if wait > 0 {
			time.Sleep(wait)
		}

		result, err := c.placeProtectiveOnce(symbol, side, orderType, triggerPrice, clientOrderID)
		if err == nil {
			result.Step = prefix
			return result, nil
		}
		lastErr = err

		if !isNetworkLayerFailure(err) {
			wrapped := bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, fmt.Sprintf("place %s order", prefix), err)
			return OrderResult{Step: prefix, Success: false, ClientOrderID: clientOrderID, ErrorMessage: wrapped.Error()}, wrapped
		}

		_ = attempt
	}

	wrapped := bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, fmt.Sprintf("place %s order exhausted retries", prefix), lastErr)
	return OrderResult{Step: prefix, Success: false, ClientOrderID: clientOrderID, ErrorMessage: wrapped.Error()}, wrapped
}

// isNetworkLayerFailure reports whether err represents a transport-level
// failure (no HTTP response received) as opposed to a parsed venue error
// envelope. The go-binance SDK surfaces both as plain errors; an
// *futures.APIError indicates the venue did respond, so only the absence of
// that type counts as network-layer here.
func isNetworkLayerFailure(err error) bool {
	if err == nil {
		return false
	}
	_, isAPIError := err.(*futures.APIError)
	return !isAPIError
}
