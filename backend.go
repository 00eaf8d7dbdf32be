package frontend

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Backend executes recorded commands. Process is called once per command,
// in recording order, from the goroutine calling Context.Process. Backends
// report their own failures through the package logger; the Context does
// not recover from them.
type Backend interface {
	// Name returns the registered backend name.
	Name() string
	// Process executes one command.
	Process(cmd Command)
	// Swap presents the swapchain.
	Swap()
	// Close releases backend resources.
	Close() error
}

// BackendFactory creates a new backend instance.
type BackendFactory func() (Backend, error)

// registry maps backend names to factories. Lookups vastly outnumber
// registrations, which happen in init.
var registry = struct {
	sync.RWMutex
	factories map[string]BackendFactory
}{factories: make(map[string]BackendFactory)}

// RegisterBackend makes a backend available to NewBackend under name. A
// backend package registers itself from init:
//
//	func init() {
//	    frontend.RegisterBackend("null", func() (frontend.Backend, error) {
//	        return New(), nil
//	    })
//	}
//
// A nil factory or a name registered before panics.
func RegisterBackend(name string, factory BackendFactory) {
	if factory == nil {
		panic("frontend: nil factory for backend " + name)
	}
	registry.Lock()
	defer registry.Unlock()
	if _, taken := registry.factories[name]; taken {
		panic("frontend: backend " + name + " registered twice")
	}
	registry.factories[name] = factory
}

// UnregisterBackend forgets name. Unknown names are ignored.
func UnregisterBackend(name string) {
	registry.Lock()
	defer registry.Unlock()
	delete(registry.factories, name)
}

func lookupBackend(name string) (BackendFactory, bool) {
	registry.RLock()
	defer registry.RUnlock()
	f, ok := registry.factories[name]
	return f, ok
}

// NewBackend calls the factory registered under name. The backend package
// must be imported for its init to run:
//
//	import _ "github.com/gogpu/frontend/backend/null"
//
//	b, err := frontend.NewBackend("null")
func NewBackend(name string) (Backend, error) {
	factory, ok := lookupBackend(name)
	if !ok {
		return nil, fmt.Errorf("frontend: no backend named %q; is its package imported?", name)
	}
	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("frontend: open backend %q: %w", name, err)
	}
	return b, nil
}

// MustBackend calls NewBackend and panics if it fails.
func MustBackend(name string) Backend {
	b, err := NewBackend(name)
	if err != nil {
		panic(err)
	}
	return b
}

// Backends lists the registered names alphabetically.
func Backends() []string {
	registry.RLock()
	defer registry.RUnlock()
	return slices.Sorted(maps.Keys(registry.factories))
}

// IsBackendRegistered reports whether NewBackend knows name.
func IsBackendRegistered(name string) bool {
	_, ok := lookupBackend(name)
	return ok
}
