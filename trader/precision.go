package trader

import (
	"context"
	"fmt"
	"strings"

	"tradebridge/bridgeerr"
)

// symbolPrecisionFor resolves and caches a symbol's quantity/price decimal
// precision from exchangeInfo's LOT_SIZE/PRICE_FILTER step sizes.
func (c *Client) symbolPrecisionFor(symbol string) (symbolPrecision, error) {
	c.precisionMu.RLock()
	p, ok := c.precision[symbol]
	c.precisionMu.RUnlock()
	if ok {
		return p, nil
	}

	info, err := c.api.NewExchangeInfoService().Do(context.Background())
	if err != nil {
		return symbolPrecision{quantity: 3, price: 2}, bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "get exchange info", err)
	}

	p = symbolPrecision{quantity: 3, price: 2}
	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}
		for _, filter := range s.Filters {
			switch filter["filterType"] {
			case "LOT_SIZE":
				if step, ok := filter["stepSize"].(string); ok {
					p.quantity = decimalsOf(step)
				}
			case "PRICE_FILTER":
				if tick, ok := filter["tickSize"].(string); ok {
					p.price = decimalsOf(tick)
				}
			}
		}
		break
	}

	c.precisionMu.Lock()
	c.precision[symbol] = p
	c.precisionMu.Unlock()

	return p, nil
}

// decimalsOf returns the number of digits after the decimal point in a
// Binance step/tick size string such as "0.00100000".
func decimalsOf(stepSize string) int {
	s := trimTrailingZeros(stepSize)
	dot := strings.IndexByte(s, '.')
	if dot == -1 || dot == len(s)-1 {
		return 0
	}
	return len(s) - dot - 1
}

func trimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

// FormatQuantity formats qty to symbol's exchange-mandated quantity precision.
func (c *Client) FormatQuantity(symbol string, qty float64) (string, error) {
	p, err := c.symbolPrecisionFor(symbol)
	if err != nil {
		return fmt.Sprintf("%.3f", qty), nil
	}
	return fmt.Sprintf("%.*f", p.quantity, qty), nil
}

// FormatPrice formats price to symbol's exchange-mandated tick precision.
func (c *Client) FormatPrice(symbol string, price float64) (string, error) {
	p, err := c.symbolPrecisionFor(symbol)
	if err != nil {
		return fmt.Sprintf("%.2f", price), nil
	}
	return fmt.Sprintf("%.*f", p.price, price), nil
}
