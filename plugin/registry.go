package plugin

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// openHandler is implemented by handlers that resolve method names they do
// not list, such as wildcard remote plugins.
type openHandler interface {
	acceptsAny() bool
}

// entry is an immutable snapshot of a handler taken at registration time.
type entry struct {
	names    []string
	methods  map[string]Method
	fallback Handler
}

func (e *entry) lookup(method string) (Method, bool) {
	if fn, ok := e.methods[method]; ok {
		return fn, true
	}
	if e.fallback != nil {
		return e.fallback.Lookup(method)
	}
	return nil, false
}

// Registry maps plugin names to handlers.
//
// Register and Resolve are safe for concurrent use. Resolve works on the entry
// current at the time of the lookup; a concurrent Register affects only later
// lookups.
type Registry struct {
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty registry. A nil logger selects slog.Default().
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Register stores a snapshot of h under name, replacing any previous handler
// with that name.
func (r *Registry) Register(name string, h Handler) error {
	if name == "" {
		return fmt.Errorf("%w: plugin name is required", ErrInvalidPlugin)
	}
	if h == nil {
		return fmt.Errorf("%w: plugin %q has no handler", ErrInvalidPlugin, name)
	}

	e := snapshot(h)

	r.mu.Lock()
	_, replaced := r.entries[name]
	r.entries[name] = e
	r.mu.Unlock()

	r.logger.Info("plugin registered",
		slog.String("name", name),
		slog.Int("methods", len(e.names)),
		slog.Bool("replaced", replaced),
	)
	return nil
}

// Resolve returns the method registered for plugin name. It fails with a
// *ResolutionError when the plugin or the method is missing.
func (r *Registry) Resolve(name, method string) (Method, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &ResolutionError{Kind: KindUnknownPlugin, Plugin: name, Method: method}
	}

	fn, ok := e.lookup(method)
	if !ok {
		return nil, &ResolutionError{Kind: KindUnknownMethod, Plugin: name, Method: method}
	}
	return fn, nil
}

// Lookup returns the method names of plugin name.
func (r *Registry) Lookup(name string) ([]string, bool) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, false
	}
	names := make([]string, len(e.names))
	copy(names, e.names)
	return names, true
}

// Names returns the sorted names of all registered plugins.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func snapshot(h Handler) *entry {
	listed := h.Methods()
	e := &entry{
		names:   make([]string, 0, len(listed)),
		methods: make(map[string]Method, len(listed)),
	}

	for _, name := range listed {
		if _, dup := e.methods[name]; dup {
			continue
		}
		fn, ok := h.Lookup(name)
		if !ok || fn == nil {
			continue
		}
		e.methods[name] = fn
		e.names = append(e.names, name)
	}
	sort.Strings(e.names)

	if open, ok := h.(openHandler); ok && open.acceptsAny() {
		e.fallback = h
	}
	return e
}
