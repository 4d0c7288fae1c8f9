package trader

import "sync"

// Pool binds exchange credentials to tenants. §4.5 calls for "a task-scoped
// credential override so the same client instance can serve different
// tenants" — the go-binance SDK client is not safe to repoint credentials on
// per call from concurrent goroutines, so this Pool achieves the same
// externally-visible effect by holding one Client per tenant and handing out
// the right one for the task's tenant id. Single-tenant mode uses the
// sentinel tenant id "".
type Pool struct {
	mu      sync.RWMutex
	clients map[string]*Client
	baseURL string
}

// NewPool creates an empty credential pool. baseURL is forwarded to every
// Client it binds, so pointing the whole pool at testnet or a mock server is
// one constructor argument rather than a per-tenant setting.
func NewPool(baseURL string) *Pool {
	return &Pool{clients: make(map[string]*Client), baseURL: baseURL}
}

// Get returns the cached Client for tenantID, or nil if none is bound yet.
func (p *Pool) Get(tenantID string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.clients[tenantID]
}

// Bind creates (or replaces) the Client for tenantID from apiKey/secretKey.
// Called on startup for the single-tenant client and whenever a tenant's
// credentials are (re)configured in multi-tenant mode.
func (p *Pool) Bind(tenantID, apiKey, secretKey string) *Client {
	client := New(apiKey, secretKey, p.baseURL)
	p.mu.Lock()
	p.clients[tenantID] = client
	p.mu.Unlock()
	return client
}

// Unbind removes a tenant's client, e.g. when auto-trading is disabled.
func (p *Pool) Unbind(tenantID string) {
	p.mu.Lock()
	delete(p.clients, tenantID)
	p.mu.Unlock()
}
