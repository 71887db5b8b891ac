package objectstore

import (
	"fmt"
	"sort"
	"sync"
)

var (
	storesMu sync.RWMutex
	stores   = make(map[string]Factory)
)

// Factory creates a Store from configuration.
// The config map contains store-specific configuration keys.
type Factory func(config map[string]string) (Store, error)

// Register registers a store factory under the given name.
// It is typically called from init() in adapter packages.
//
// Register panics if factory is nil or if a store with the same name
// is already registered.
func Register(name string, factory Factory) {
	storesMu.Lock()
	defer storesMu.Unlock()

	if factory == nil {
		panic("objectstore: Register factory is nil")
	}
	if _, dup := stores[name]; dup {
		panic("objectstore: Register called twice for store " + name)
	}
	stores[name] = factory
}

// Open opens a store by name with the given configuration.
//
// Open returns ErrUnknownStore if no store with the given name is registered.
func Open(name string, config map[string]string) (Store, error) {
	storesMu.RLock()
	factory, ok := stores[name]
	storesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStore, name)
	}
	return factory(config)
}

// Stores returns a sorted list of registered store names.
func Stores() []string {
	storesMu.RLock()
	defer storesMu.RUnlock()

	names := make([]string, 0, len(stores))
	for name := range stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
