package analyzer

import (
	"fmt"
	"sync"
)

// Registry holds the analyzers available to a run in registration order.
type Registry struct {
	mu        sync.RWMutex
	analyzers []Analyzer
	byName    map[string]Analyzer
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Analyzer)}
}

// Register adds an analyzer. Names must be unique.
func (r *Registry) Register(a Analyzer) error {
	if a == nil {
		return fmt.Errorf("cannot register nil analyzer")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return fmt.Errorf("analyzer name is required")
	}
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("analyzer %q already registered", name)
	}
	r.byName[name] = a
	r.analyzers = append(r.analyzers, a)
	return nil
}

// Get returns the analyzer registered under name.
func (r *Registry) Get(name string) (Analyzer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byName[name]
	return a, ok
}

// All returns the analyzers in registration order.
func (r *Registry) All() []Analyzer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Analyzer(nil), r.analyzers...)
}

// Names returns the registered analyzer names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.analyzers))
	for i, a := range r.analyzers {
		names[i] = a.Name()
	}
	return names
}
