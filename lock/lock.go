// Package lock provides the process-wide per-symbol mutual-exclusion
// registry shared between the execution engine and the stream reconciler.
package lock

import "sync"

// Registry is a process-wide sync.Map of *sync.Mutex, one per symbol,
// created lazily and never removed — bounded by the number of distinct
// symbols ever traded, the same long-lived-cache tradeoff the teacher makes
// for its balance/position caches.
type Registry struct {
	mutexes sync.Map // symbol -> *sync.Mutex
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) mutexFor(symbol string) *sync.Mutex {
	v, _ := r.mutexes.LoadOrStore(symbol, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Lock acquires the mutex for symbol, blocking until it is free.
func (r *Registry) Lock(symbol string) {
	r.mutexFor(symbol).Lock()
}

// Unlock releases the mutex for symbol. Panics if not held, same as
// sync.Mutex.
func (r *Registry) Unlock(symbol string) {
	r.mutexFor(symbol).Unlock()
}

// WithLock runs fn with the symbol's mutex held for the entire duration,
// matching the "acquire for its entire operation" requirement on engine
// operations and reconciliation-close.
func WithLock[T any](r *Registry, symbol string, fn func() (T, error)) (T, error) {
	r.Lock(symbol)
	defer r.Unlock(symbol)
	return fn()
}
