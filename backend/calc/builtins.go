package calc

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tailored-agentic-units/nbkernel/backend"
)

// Call is what a builtin sees of the running execution.
type Call struct {
	Ctx context.Context
	Env backend.Env
	// Vars is a read-only snapshot of the session variables.
	Vars map[string]any
}

// Func implements a builtin. Returning a *backend.Error raises it in the
// calling code; other errors become RuntimeError.
type Func func(call *Call, args ...any) (any, error)

// Builtin is a function callable from calc code.
type Builtin struct {
	Name      string
	Signature string
	Doc       string
	Fn        Func
}

// Builtins is the set of functions available to an interpreter.
// Thread-safe for concurrent access.
type Builtins struct {
	entries map[string]Builtin
	mu      sync.RWMutex
}

// NewBuiltins creates an empty set.
func NewBuiltins() *Builtins {
	return &Builtins{entries: make(map[string]Builtin)}
}

// Register adds a builtin. Returns ErrBuiltinExists if the name is taken;
// use Replace to update one.
func (b *Builtins) Register(builtin Builtin) error {
	if builtin.Name == "" {
		return ErrEmptyName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[builtin.Name]; exists {
		return fmt.Errorf("%w: %s", ErrBuiltinExists, builtin.Name)
	}

	b.entries[builtin.Name] = builtin
	return nil
}

// Replace updates an existing builtin.
func (b *Builtins) Replace(builtin Builtin) error {
	if builtin.Name == "" {
		return ErrEmptyName
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.entries[builtin.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrBuiltinNotFound, builtin.Name)
	}

	b.entries[builtin.Name] = builtin
	return nil
}

// Get retrieves a builtin by name.
func (b *Builtins) Get(name string) (Builtin, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	builtin, exists := b.entries[name]
	return builtin, exists
}

// List returns all builtins sorted by name.
func (b *Builtins) List() []Builtin {
	b.mu.RLock()
	defer b.mu.RUnlock()

	list := make([]Builtin, 0, len(b.entries))
	for _, e := range b.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}
