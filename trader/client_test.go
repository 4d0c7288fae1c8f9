package trader

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
)

// newTestClient builds a Client wired directly to a fake futures.Client
// pointed at an httptest server, bypassing New()'s real server-time sync and
// one-way-position-mode call — the same shortcut the teacher's own
// BinanceFuturesTestSuite takes to keep tests offline.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	api := futures.NewClient("test-key", "test-secret")
	api.BaseURL = server.URL
	api.HTTPClient = server.Client()

	return &Client{
		api:           api,
		cacheDuration: 0,
		precision:     make(map[string]symbolPrecision),
	}
}

// newTestClientAgainstServer builds a client against an already-closed
// server URL when url == "", so every call returns a network-layer error —
// used to exercise fallback/retry paths deterministically.
func newTestClientAgainstServer(t *testing.T, url string) *Client {
	t.Helper()
	if url == "" {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url = server.URL
		server.Close()
	}
	api := futures.NewClient("test-key", "test-secret")
	api.BaseURL = url
	return &Client{api: api, cacheDuration: 0, precision: make(map[string]symbolPrecision)}
}

func jsonHandler(status int, body interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
