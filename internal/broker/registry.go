package broker

import "sync"

// Factory builds a fresh Adapter. The registry never hands out a shared
// instance: credentials are per-call and adapters must not leak state
// across unrelated requests.
type Factory func() Adapter

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds a broker factory under the given identifier. It is
// called from init or process wiring, before any Resolve.
func Register(name string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[name] = f
}

// Resolve looks up the broker identifier and returns a new adapter
// instance. An unknown identifier yields ErrNotFound, a normal,
// handled outcome.
func Resolve(name string) (Adapter, error) {
	regMu.RLock()
	f, ok := factories[name]
	regMu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return f(), nil
}

// Registered returns the identifiers with a registered factory.
func Registered() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	return names
}
