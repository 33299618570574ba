package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownObserver is returned by GetObserver for unregistered names.
var ErrUnknownObserver = errors.New("unknown observer")

var (
	mu        sync.RWMutex
	observers = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
	}
)

// GetObserver looks up a named observer. "noop" and "slog" always exist.
func GetObserver(name string) (Observer, error) {
	mu.RLock()
	defer mu.RUnlock()

	obs, ok := observers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObserver, name)
	}
	return obs, nil
}

// RegisterObserver adds or replaces a named observer.
func RegisterObserver(name string, observer Observer) {
	mu.Lock()
	defer mu.Unlock()
	observers[name] = observer
}

// ObserverNames lists registered observers, sorted.
func ObserverNames() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(observers))
	for name := range observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
