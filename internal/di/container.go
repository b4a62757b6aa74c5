// Package di implements the lightweight dependency container the bounded
// context modules register their services into, keyed by string token.
package di

import "sync"

// ServiceRegistry is the read side of the container: resolve a previously
// registered value or factory by its token.
type ServiceRegistry interface {
	Get(key string) interface{}
}

// Container is the write side: bounded-context modules register concrete
// values (Register) or lazily-built singletons (RegisterToken) against a
// token during RegisterServices, then resolve each other's tokens through
// the ServiceRegistry during Startup.
type Container interface {
	ServiceRegistry
	Register(key string, val interface{})
}

type entry struct {
	value   interface{}
	built   bool
	factory func(ServiceRegistry) interface{}
}

// container is the default in-memory Container/ServiceRegistry. Factories
// resolve lazily and memoize, so modules can register in any order as long
// as the dependency graph has no cycle.
type container struct {
	mu       sync.Mutex
	entries  map[string]*entry
	building map[string]bool
}

// NewContainer creates an empty Container.
func NewContainer() Container {
	return &container{
		entries:  make(map[string]*entry),
		building: make(map[string]bool),
	}
}

// Register stores a concrete, already-constructed value under key.
func (c *container) Register(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{value: val, built: true}
}

func (c *container) registerFactory(key string, factory func(ServiceRegistry) interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry{factory: factory}
}

// Get resolves key, running and memoizing its factory on first access.
// Panics on an unregistered token or a circular dependency - both are
// wiring bugs caught at startup, never at steady state.
func (c *container) Get(key string) interface{} {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		panic("di: unregistered token " + key)
	}
	if e.built {
		v := e.value
		c.mu.Unlock()
		return v
	}
	if c.building[key] {
		c.mu.Unlock()
		panic("di: circular dependency resolving token " + key)
	}
	c.building[key] = true
	factory := e.factory
	c.mu.Unlock()

	v := factory(c)

	c.mu.Lock()
	e.value = v
	e.built = true
	e.factory = nil
	delete(c.building, key)
	c.mu.Unlock()
	return v
}

// RegisterToken registers a lazily-built, memoized singleton under token.
// The factory receives the ServiceRegistry so it can resolve its own
// dependencies regardless of registration order between modules.
func RegisterToken[T any](c Container, token string, factory func(ServiceRegistry) T) {
	cc, ok := c.(*container)
	if !ok {
		panic("di: RegisterToken requires the container returned by NewContainer")
	}
	cc.registerFactory(token, func(sr ServiceRegistry) interface{} {
		return factory(sr)
	})
}

// Resolve fetches token from sr and asserts it to T, the shape every
// bounded context's per-token GetXxx helper wraps.
func Resolve[T any](sr ServiceRegistry, token string) T {
	return sr.Get(token).(T)
}
