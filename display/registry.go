package display

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tailored-agentic-units/nbkernel/observability"
)

// Formatter renders a value. An empty bundle means the formatter has
// nothing to offer and the next one is tried.
type Formatter func(value any) (Bundle, error)

// Predicate selects the values a formatter applies to.
type Predicate func(value any) bool

// Formatter priorities. Registrations default to PriorityDefault, so they
// win over every built-in.
const (
	PriorityDefault  = 0
	PriorityBuiltin  = -10
	PriorityStringer = -20
	PriorityGeneric  = -30
)

const formatterErrorMarker = "(formatter error)"

type entry struct {
	name     string
	priority int
	seq      uint64
	match    Predicate
	format   Formatter
}

// RegisterOption configures a single registration.
type RegisterOption func(*entry)

// WithPriority sets the priority of a formatter. Higher priorities are tried
// first.
func WithPriority(priority int) RegisterOption {
	return func(e *entry) { e.priority = priority }
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver routes formatter failures to observer.
func WithObserver(observer observability.Observer) Option {
	return func(r *Registry) {
		if observer != nil {
			r.observer = observer
		}
	}
}

// WithoutBuiltins creates a registry with no built-in formatters.
func WithoutBuiltins() Option {
	return func(r *Registry) { r.builtins = false }
}

// Registry is an ordered, mutable set of formatters.
//
// Format tries a value's own MimeBundle method first, then formatters by
// descending priority, most recently registered first within a priority.
// The first non-empty result wins. Failing formatters are skipped. When
// nothing else applies the value's fmt.Sprint form becomes text/plain.
type Registry struct {
	cfg      Config
	observer observability.Observer
	builtins bool

	mu      sync.RWMutex
	entries []entry
	seq     uint64
}

// NewRegistry creates a registry with the built-in formatters installed.
func NewRegistry(cfg Config, opts ...Option) *Registry {
	r := &Registry{
		cfg:      cfg,
		observer: observability.NoOpObserver{},
		builtins: true,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.builtins {
		if err := registerBuiltins(r); err != nil {
			panic(fmt.Sprintf("display: failed to register builtin formatters: %v", err))
		}
	}
	return r
}

// Register adds a formatter under name. Registering an existing name
// replaces it and moves it ahead of older formatters of the same priority.
func (r *Registry) Register(name string, match Predicate, format Formatter, opts ...RegisterOption) error {
	if name == "" {
		return ErrEmptyName
	}
	if match == nil || format == nil {
		return fmt.Errorf("%w: %s", ErrNilFormatter, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	e := entry{name: name, priority: PriorityDefault, seq: r.seq, match: match, format: format}
	for _, opt := range opts {
		opt(&e)
	}

	r.entries = slices.DeleteFunc(r.entries, func(x entry) bool { return x.name == name })
	r.entries = append(r.entries, e)
	slices.SortStableFunc(r.entries, func(a, b entry) int {
		if a.priority != b.priority {
			return b.priority - a.priority
		}
		if a.seq > b.seq {
			return -1
		}
		return 1
	})
	return nil
}

// RegisterType adds a formatter for values of type T. T may be an interface.
func RegisterType[T any](r *Registry, name string, format func(T) (Bundle, error), opts ...RegisterOption) error {
	if format == nil {
		return fmt.Errorf("%w: %s", ErrNilFormatter, name)
	}
	match := func(v any) bool {
		_, ok := v.(T)
		return ok
	}
	return r.Register(name, match, func(v any) (Bundle, error) {
		return format(v.(T))
	}, opts...)
}

// Unregister removes a formatter by name.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.entries)
	r.entries = slices.DeleteFunc(r.entries, func(x entry) bool { return x.name == name })
	if len(r.entries) == n {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

// Names returns formatter names in the order Format tries them.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Format renders value. The result always carries text/plain and is never
// empty; failures surface as a text/plain marker instead of an error.
func (r *Registry) Format(ctx context.Context, value any) Bundle {
	var failures []error

	if mb, ok := value.(MimeBundler); ok {
		b, err := r.try("mimebundle", mb.MimeBundle)
		switch {
		case err != nil:
			failures = append(failures, r.failed(ctx, "mimebundle", value, err))
		case !b.IsEmpty():
			return r.finish(value, b)
		}
	}

	for _, e := range r.snapshot() {
		matched := false
		b, err := r.try(e.name, func() (Bundle, error) {
			if !e.match(value) {
				return Bundle{}, nil
			}
			matched = true
			return e.format(value)
		})
		if err != nil {
			failures = append(failures, r.failed(ctx, e.name, value, err))
			continue
		}
		if matched && !b.IsEmpty() {
			return r.finish(value, b)
		}
	}

	text, err := fallbackText(value)
	if err != nil {
		failures = append(failures, r.failed(ctx, "fallback", value, err))
		return r.finish(value, Plain(failureText(value, failures)))
	}
	return r.finish(value, Plain(text))
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.entries)
}

// try runs a formatter step, turning panics into ErrFormatter.
func (r *Registry) try(name string, fn func() (Bundle, error)) (b Bundle, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			b = Bundle{}
			err = fmt.Errorf("%w: %s panicked: %v", ErrFormatter, name, rec)
		}
	}()

	b, err = fn()
	if err != nil && !errors.Is(err, ErrFormatter) {
		err = fmt.Errorf("%w: %s: %w", ErrFormatter, name, err)
	}
	return b, err
}

func (r *Registry) failed(ctx context.Context, name string, value any, err error) error {
	r.observer.OnEvent(ctx, observability.Event{
		Type:      EventFormatterError,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "display.Registry",
		Data: map[string]any{
			"formatter":  name,
			"value_type": fmt.Sprintf("%T", value),
			"error":      err.Error(),
		},
	})
	return err
}

func (r *Registry) finish(value any, b Bundle) Bundle {
	if _, ok := b.Data[MIMEPlain]; !ok {
		text, err := fallbackText(value)
		if err != nil {
			text = failureText(value, []error{err})
		}
		b.Ensure(text)
	}
	if b.Metadata == nil {
		b.Metadata = map[string]any{}
	}

	if r.cfg.PlainTextLimit > 0 {
		if s, ok := b.Data[MIMEPlain].(string); ok {
			b.Data[MIMEPlain] = truncate(s, r.cfg.PlainTextLimit)
		}
	}

	if r.cfg.DisableImageMetadata {
		for mime := range b.Metadata {
			if strings.HasPrefix(mime, "image/") {
				delete(b.Metadata, mime)
			}
		}
	}
	return b
}

// fallbackText is the universal formatter. fmt recovers panics from String
// and Error methods and embeds them in its output; those count as failures.
func fallbackText(value any) (string, error) {
	s := fmt.Sprint(value)
	if strings.Contains(s, "%!v(PANIC=") {
		return "", fmt.Errorf("%w: %s", ErrFormatter, s)
	}
	return s, nil
}

func failureText(value any, failures []error) string {
	msg := formatterErrorMarker + " " + fmt.Sprintf("%T", value)
	if len(failures) > 0 {
		msg += ": " + failures[0].Error()
	}
	return msg
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}
