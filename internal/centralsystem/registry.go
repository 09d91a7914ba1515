package centralsystem

import (
	"context"
	"encoding/json"
	"slices"
	"sync"

	"csms/internal/metrics"
)

// Handle is a live charge point connection as seen by the registry and the
// command gateway. *ocppj.Conn implements it.
type Handle interface {
	ID() string
	Call(ctx context.Context, action string, payload any) (json.RawMessage, error)
	Close(code int, reason string) error
}

// Registry maps identities to live connections. It holds no business logic.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Handle
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Handle)}
}

// Register stores h under identity, replacing any previous handle. The
// replaced handle, if any and different from h, is returned so the caller
// can close it.
func (r *Registry) Register(identity string, h Handle) Handle {
	r.mu.Lock()
	prev := r.conns[identity]
	r.conns[identity] = h
	n := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectedChargers.Set(float64(n))
	if prev == h {
		return nil
	}
	return prev
}

// Unregister removes identity only while it still maps to h, so a stale
// connection closing late cannot evict its replacement.
func (r *Registry) Unregister(identity string, h Handle) bool {
	r.mu.Lock()
	cur, ok := r.conns[identity]
	removed := ok && cur == h
	if removed {
		delete(r.conns, identity)
	}
	n := len(r.conns)
	r.mu.Unlock()

	metrics.ConnectedChargers.Set(float64(n))
	return removed
}

func (r *Registry) Lookup(identity string) (Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.conns[identity]
	return h, ok
}

// List returns a sorted snapshot of registered identities.
func (r *Registry) List() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
