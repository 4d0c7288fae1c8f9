package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"tradebridge/bridgeerr"
	"tradebridge/logger"
)

// Client wraps a single set of Binance futures credentials. Multi-tenant
// fan-out binds credentials per tenant by holding one Client per tenant in a
// Pool rather than mutating shared SDK state across goroutines.
type Client struct {
	api *futures.Client

	cacheDuration time.Duration

	balanceMu   sync.RWMutex
	balance     *Balance
	balanceAt   time.Time

	positionsMu sync.RWMutex
	positions   []Position
	positionsAt time.Time

	precisionMu sync.RWMutex
	precision   map[string]symbolPrecision
}

type symbolPrecision struct {
	quantity int
	price    int
}

// New creates a Client bound to one set of API credentials and switches the
// account to one-way position mode, matching §4.8's assumption that a
// (tenant, symbol) pair has at most one position. baseURL overrides the
// SDK's default production host when non-empty, e.g. to point at Binance's
// testnet or a mock server.
func New(apiKey, secretKey, baseURL string) *Client {
	api := futures.NewClient(apiKey, secretKey)
	if baseURL != "" {
		api.BaseURL = baseURL
	}
	syncServerTime(api)

	c := &Client{
		api:           api,
		cacheDuration: 15 * time.Second,
		precision:     make(map[string]symbolPrecision),
	}

	if err := c.setOneWayPosition(); err != nil {
		logger.Warnf("one-way position mode: %v (ignore if already one-way)", err)
	}

	return c
}

func syncServerTime(api *futures.Client) {
	serverTime, err := api.NewServerTimeService().Do(context.Background())
	if err != nil {
		logger.Warnf("binance server time sync failed: %v", err)
		return
	}
	offset := time.Now().UnixMilli() - serverTime
	api.TimeOffset = offset
}

func (c *Client) setOneWayPosition() error {
	err := c.api.NewChangePositionModeService().DualSide(false).Do(context.Background())
	if err != nil {
		if strings.Contains(err.Error(), "No need to change position side") {
			return nil
		}
		return err
	}
	return nil
}

// GetBalance returns wallet/available balance, cached for cacheDuration — the
// engine's pre-trade pipeline queries it once per operation; the short cache
// only protects back-to-back operations within the same lock window from
// re-querying the venue.
func (c *Client) GetBalance() (Balance, error) {
	c.balanceMu.RLock()
	if c.balance != nil && time.Since(c.balanceAt) < c.cacheDuration {
		b := *c.balance
		c.balanceMu.RUnlock()
		return b, nil
	}
	c.balanceMu.RUnlock()

	account, err := c.api.NewGetAccountService().Do(context.Background())
	if err != nil {
		return Balance{}, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "get account balance", err)
	}

	total, _ := strconv.ParseFloat(account.TotalWalletBalance, 64)
	avail, _ := strconv.ParseFloat(account.AvailableBalance, 64)
	unrealized, _ := strconv.ParseFloat(account.TotalUnrealizedProfit, 64)
	b := Balance{TotalWalletBalance: total, AvailableBalance: avail, TotalUnrealizedProfit: unrealized}

	c.balanceMu.Lock()
	c.balance = &b
	c.balanceAt = time.Now()
	c.balanceMu.Unlock()

	return b, nil
}

// GetPositions returns every non-zero position, cached for cacheDuration.
func (c *Client) GetPositions() ([]Position, error) {
	c.positionsMu.RLock()
	if c.positions != nil && time.Since(c.positionsAt) < c.cacheDuration {
		p := c.positions
		c.positionsMu.RUnlock()
		return p, nil
	}
	c.positionsMu.RUnlock()

	raw, err := c.api.NewGetPositionRiskService().Do(context.Background())
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "get positions", err)
	}

	var result []Position
	for _, pos := range raw {
		amt, _ := strconv.ParseFloat(pos.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(pos.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(pos.MarkPrice, 64)
		unrealized, _ := strconv.ParseFloat(pos.UnRealizedProfit, 64)
		leverage, _ := strconv.Atoi(pos.Leverage)
		liq, _ := strconv.ParseFloat(pos.LiquidationPrice, 64)
		result = append(result, Position{
			Symbol:           pos.Symbol,
			Quantity:         amt,
			EntryPrice:       entry,
			MarkPrice:        mark,
			UnrealizedProfit: unrealized,
			Leverage:         leverage,
			LiquidationPrice: liq,
		})
	}

	c.positionsMu.Lock()
	c.positions = result
	c.positionsAt = time.Now()
	c.positionsMu.Unlock()

	return result, nil
}

// GetPosition returns the position for symbol, or a zero-quantity Position
// if flat.
func (c *Client) GetPosition(symbol string) (Position, error) {
	positions, err := c.GetPositions()
	if err != nil {
		return Position{}, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return Position{Symbol: symbol}, nil
}

// GetMarketPrice fetches the current mark/last price for symbol.
func (c *Client) GetMarketPrice(symbol string) (float64, error) {
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "get market price", err)
	}
	if len(prices) == 0 {
		return 0, bridgeerr.New(bridgeerr.ExchangeQueryFailed, "price not found for "+symbol)
	}
	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "parse market price", err)
	}
	return price, nil
}

// SetMarginMode sets isolated or cross margin for symbol. An
// already-isolated/already-open-position response is treated as success,
// matching Binance's semantics for a mode that's already in effect. Any
// other error is logged and also swallowed: the method always returns nil.
func (c *Client) SetMarginMode(symbol string, isolated bool) error {
	marginType := futures.MarginTypeIsolated
	if !isolated {
		marginType = futures.MarginTypeCrossed
	}

	err := c.api.NewChangeMarginTypeService().Symbol(symbol).MarginType(marginType).Do(context.Background())
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "No need to change") ||
		strings.Contains(err.Error(), "cannot be changed if there exists position") {
		return nil
	}
	logger.Warnf("set margin mode for %s: %v", symbol, err)
	return nil
}

// SetLeverage sets fixed leverage for symbol.
func (c *Client) SetLeverage(symbol string, leverage int) error {
	_, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(context.Background())
	if err != nil {
		if strings.Contains(err.Error(), "No need to change") {
			return nil
		}
		return bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, fmt.Sprintf("set leverage %dx on %s", leverage, symbol), err)
	}
	return nil
}

// GetOpenOrders lists resting orders on symbol.
func (c *Client) GetOpenOrders(symbol string) ([]OpenOrder, error) {
	orders, err := c.api.NewListOpenOrdersService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return nil, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "get open orders", err)
	}

	result := make([]OpenOrder, 0, len(orders))
	for _, o := range orders {
		price, _ := strconv.ParseFloat(o.Price, 64)
		stopPrice, _ := strconv.ParseFloat(o.StopPrice, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		result = append(result, OpenOrder{
			OrderID:       strconv.FormatInt(o.OrderID, 10),
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          Side(o.Side),
			Type:          string(o.Type),
			Price:         price,
			StopPrice:     stopPrice,
			Quantity:      qty,
			ReduceOnly:    o.ReduceOnly,
			Status:        string(o.Status),
		})
	}

	// Protective (SL/TP) orders live on the Algo endpoint under this SDK
	// version; merge them in so callers see the full resting-order picture.
	algoOrders, err := c.api.NewListOpenAlgoOrdersService().Symbol(symbol).Do(context.Background())
	if err == nil {
		for _, a := range algoOrders {
			triggerPrice, _ := strconv.ParseFloat(a.TriggerPrice, 64)
			qty, _ := strconv.ParseFloat(a.Quantity, 64)
			result = append(result, OpenOrder{
				OrderID:       strconv.FormatInt(a.AlgoId, 10),
				ClientOrderID: a.ClientAlgoId,
				Symbol:        a.Symbol,
				Side:          Side(a.Side),
				Type:          string(a.OrderType),
				StopPrice:     triggerPrice,
				Quantity:      qty,
				ReduceOnly:    true,
				Status:        "NEW",
			})
		}
	}

	return result, nil
}

// CancelOrder cancels one order by exchange order id.
func (c *Client) CancelOrder(symbol, orderID string) error {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return bridgeerr.New(bridgeerr.InputInvalid, "invalid order id "+orderID)
	}
	_, err = c.api.NewCancelOrderService().Symbol(symbol).OrderID(id).Do(context.Background())
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, "cancel order "+orderID, err)
	}
	return nil
}

// CancelAllOrders cancels every open order on symbol, both the legacy
// (LIMIT/MARKET) order book and the Algo (SL/TP) order book.
func (c *Client) CancelAllOrders(symbol string) error {
	err := c.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.ExchangeOrderFailed, "cancel all orders on "+symbol, err)
	}

	if err := c.api.NewCancelAllAlgoOpenOrdersService().Symbol(symbol).Do(context.Background()); err != nil {
		logger.Warnf("cancel all algo orders on %s: %v", symbol, err)
	}

	return nil
}

// GetOrderStatus queries a single order's fill state.
func (c *Client) GetOrderStatus(symbol, orderID string) (OrderResult, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return OrderResult{}, bridgeerr.New(bridgeerr.InputInvalid, "invalid order id "+orderID)
	}
	order, err := c.api.NewGetOrderService().Symbol(symbol).OrderID(id).Do(context.Background())
	if err != nil {
		return OrderResult{}, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "get order status", err)
	}
	avgPrice, _ := strconv.ParseFloat(order.AvgPrice, 64)
	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	return OrderResult{
		Step:          "STATUS",
		Success:       string(order.Status) == "FILLED",
		Symbol:        order.Symbol,
		Side:          Side(order.Side),
		Type:          string(order.Type),
		OrderID:       strconv.FormatInt(order.OrderID, 10),
		ClientOrderID: order.ClientOrderID,
		Price:         avgPrice,
		Quantity:      executedQty,
	}, nil
}
