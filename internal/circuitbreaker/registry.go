package circuitbreaker

import (
	"sort"
	"sync"
)

// Registry owns one breaker per dependency name. Breakers are created on
// first use from the settings factory.
type Registry[T any] struct {
	mutex    sync.RWMutex
	breakers map[string]*Breaker[T]
	settings func(name string) Settings[T]
}

func NewRegistry[T any](settings func(name string) Settings[T]) *Registry[T] {
	return &Registry[T]{
		breakers: make(map[string]*Breaker[T]),
		settings: settings,
	}
}

func (r *Registry[T]) GetBreaker(name string) *Breaker[T] {
	r.mutex.RLock()
	cb, exists := r.breakers[name]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[name]; exists {
		return cb
	}

	settings := r.settings(name)
	settings.Name = name
	cb = New(settings)
	r.breakers[name] = cb
	return cb
}

// Names returns the registered dependency names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats returns a snapshot of every breaker keyed by dependency name.
func (r *Registry[T]) Stats() map[string]Stats {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]Stats, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.Stats()
	}
	return stats
}
