package trader

import (
	"context"

	"tradebridge/bridgeerr"
)

// CreateListenKey starts a new user-data-stream listen key (§4.2.1 step 1).
func (c *Client) CreateListenKey() (string, error) {
	key, err := c.api.NewStartUserStreamService().Do(context.Background())
	if err != nil {
		return "", bridgeerr.Wrap(bridgeerr.ExchangeQueryFailed, "create listen key", err)
	}
	return key, nil
}

// KeepAliveListenKey refreshes the listen key's 60-minute expiry (called
// every 30 minutes per §4.2.1 step 3).
func (c *Client) KeepAliveListenKey(listenKey string) error {
	err := c.api.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(context.Background())
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.StreamTransient, "keepalive listen key", err)
	}
	return nil
}

// DeleteListenKey closes the listen key on intentional shutdown or before a
// reconnect (§4.2.1 step 6, §4.2.4).
func (c *Client) DeleteListenKey(listenKey string) error {
	err := c.api.NewCloseUserStreamService().ListenKey(listenKey).Do(context.Background())
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.StreamTransient, "delete listen key", err)
	}
	return nil
}
