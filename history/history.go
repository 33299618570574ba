package history

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

// History is the working set of inputs for the current kernel session plus
// the most recent entries of earlier sessions. Reads never trigger I/O.
// All methods are safe for concurrent use.
type History struct {
	store      Store
	maxEntries int

	mu      sync.RWMutex
	session int
	past    []Entry
	current []Entry
}

// New creates a History backed by store. Call Bootstrap before appending.
func New(store Store, cfg Config) *History {
	if store == nil {
		store = NewMemoryStore()
	}
	limit := cfg.MaxEntries
	if limit <= 0 {
		limit = defaultMaxEntries
	}
	return &History{store: store, maxEntries: limit, session: 1}
}

// Bootstrap numbers the current session one past the highest stored session
// and loads earlier entries, newest first, up to MaxEntries.
func (h *History) Bootstrap(ctx context.Context) error {
	sessions, err := h.store.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap index: %w", err)
	}

	next := 1
	if len(sessions) > 0 {
		next = sessions[len(sessions)-1] + 1
	}

	var past []Entry
	for i := len(sessions) - 1; i >= 0 && len(past) < h.maxEntries; i-- {
		entries, err := h.store.Load(ctx, sessions[i])
		if err != nil {
			return fmt.Errorf("bootstrap load: %w", err)
		}
		past = append(slices.Clone(entries), past...)
	}
	if len(past) > h.maxEntries {
		past = past[len(past)-h.maxEntries:]
	}

	h.mu.Lock()
	h.session = next
	h.past = past
	h.current = nil
	h.mu.Unlock()
	return nil
}

// Session returns the current session number.
func (h *History) Session() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// Append records input as line of the current session and persists it.
func (h *History) Append(ctx context.Context, line int, input string) error {
	h.mu.Lock()
	h.current = append(h.current, Entry{Session: h.session, Line: line, Input: input})
	session, entries := h.session, slices.Clone(h.current)
	h.mu.Unlock()

	return h.store.Save(ctx, session, entries)
}

// SetOutput attaches the text form of a result to a recorded line.
func (h *History) SetOutput(ctx context.Context, line int, output string) error {
	h.mu.Lock()
	found := false
	for i := len(h.current) - 1; i >= 0; i-- {
		if h.current[i].Line == line {
			h.current[i].Output = output
			found = true
			break
		}
	}
	session, entries := h.session, slices.Clone(h.current)
	h.mu.Unlock()

	if !found {
		return nil
	}
	return h.store.Save(ctx, session, entries)
}

// Tail returns the last n entries across sessions. A non-positive n returns
// everything.
func (h *History) Tail(n int) []Entry {
	all := h.all()
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Range returns entries of one session with start <= line < stop. A
// non-positive session is relative to the current one (0 is current, -1 the
// previous). A non-positive stop means no upper bound.
func (h *History) Range(session, start, stop int) []Entry {
	h.mu.RLock()
	if session <= 0 {
		session += h.session
	}
	h.mu.RUnlock()

	var out []Entry
	for _, e := range h.all() {
		if e.Session != session || e.Line < start {
			continue
		}
		if stop > 0 && e.Line >= stop {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Search returns entries whose input matches the glob pattern, where '*'
// matches any run of characters and '?' a single one. With unique set only
// the most recent occurrence of each input is kept. A positive n keeps the
// last n matches.
func (h *History) Search(pattern string, n int, unique bool) ([]Entry, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	var matches []Entry
	for _, e := range h.all() {
		if re.MatchString(e.Input) {
			matches = append(matches, e)
		}
	}

	if unique {
		seen := make(map[string]bool, len(matches))
		kept := make([]Entry, 0, len(matches))
		for i := len(matches) - 1; i >= 0; i-- {
			if seen[matches[i].Input] {
				continue
			}
			seen[matches[i].Input] = true
			kept = append(kept, matches[i])
		}
		slices.Reverse(kept)
		matches = kept
	}

	if n > 0 && len(matches) > n {
		matches = matches[len(matches)-n:]
	}
	return matches, nil
}

func (h *History) all() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	all := make([]Entry, 0, len(h.past)+len(h.current))
	all = append(all, h.past...)
	return append(all, h.current...)
}

func compileGlob(pattern string) (*regexp.Regexp, error) {
	if pattern == "" {
		pattern = "*"
	}

	var b strings.Builder
	b.WriteString("(?s)^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadPattern, pattern, err)
	}
	return re, nil
}
