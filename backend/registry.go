package backend

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a backend session.
type Factory func() (Backend, error)

// Registry manages named backend factories with lazy instantiation.
// Factories are stored at registration time; sessions are created on first
// Get call. Thread-safe for concurrent access.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	backends  map[string]Backend
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		backends:  make(map[string]Backend),
	}
}

// Get retrieves a named backend, instantiating it on first access.
func (r *Registry) Get(name string) (Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	factory, registered := r.factories[name]
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if b, exists := r.backends[name]; exists {
		return b, nil
	}

	b, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create backend %q: %w", name, err)
	}

	r.backends[name] = b
	return b, nil
}

// List returns the names of all registered backends, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a named backend factory. The backend is not created until
// Get is called.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	r.factories[name] = factory
	return nil
}

// Replace updates the factory for an existing backend. Any cached session is
// discarded; the next Get creates a new one.
func (r *Registry) Replace(name string, factory Factory) error {
	if name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	r.factories[name] = factory
	delete(r.backends, name)
	return nil
}

// Unregister removes a named backend.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	delete(r.factories, name)
	delete(r.backends, name)
	return nil
}
