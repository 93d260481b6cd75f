package registry

import (
	"reflect"
	"sync"

	"github.com/goliatone/go-directive"
)

// Entry is the registration for one directive type.
type Entry struct {
	Handler directive.Handler
	Policy  directive.BlockingPolicy
}

// Registry maps each directive type to exactly one handler.
type Registry struct {
	mu      sync.RWMutex
	entries map[directive.NamespaceAndName]Entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[directive.NamespaceAndName]Entry),
	}
}

// Register installs every type declared by h, or nothing. A type already
// owned by h is accepted again; a type owned by any other handler rejects the
// whole request.
func (r *Registry) Register(h directive.Handler) error {
	if directive.IsNil(h) {
		return directive.NewError(directive.ErrNilHandler, "", nil, nil)
	}

	if !reflect.TypeOf(h).Comparable() {
		return directive.NewError(directive.ErrInvalidHandler, "", nil, map[string]any{
			"handler_type": reflect.TypeOf(h).String(),
		})
	}

	config := h.Configuration().Clone()
	if len(config) == 0 {
		return directive.NewError(directive.ErrEmptyConfiguration, "", nil, map[string]any{
			"handler_type": reflect.TypeOf(h).String(),
		})
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entries == nil {
		r.entries = make(map[directive.NamespaceAndName]Entry)
	}

	var conflicts []string
	for _, t := range config.Types() {
		if existing, ok := r.entries[t]; ok && existing.Handler != h {
			conflicts = append(conflicts, t.String())
		}
	}

	if len(conflicts) > 0 {
		return directive.NewError(directive.ErrRegistrationConflict, "", nil, map[string]any{
			"conflicts":    conflicts,
			"handler_type": reflect.TypeOf(h).String(),
		})
	}

	for t, policy := range config {
		r.entries[t] = Entry{Handler: h, Policy: policy}
	}

	return nil
}

// Deregister removes every type owned by h and reports whether any was removed.
func (r *Registry) Deregister(h directive.Handler) bool {
	if directive.IsNil(h) || !reflect.TypeOf(h).Comparable() {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false
	for t, e := range r.entries {
		if e.Handler == h {
			delete(r.entries, t)
			removed = true
		}
	}
	return removed
}

// Lookup returns the registration for t.
func (r *Registry) Lookup(t directive.NamespaceAndName) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e, ok
}

// Owner returns the handler owning t, or nil.
func (r *Registry) Owner(t directive.NamespaceAndName) directive.Handler {
	e, ok := r.Lookup(t)
	if !ok {
		return nil
	}
	return e.Handler
}

// Handlers returns the distinct registered handlers.
func (r *Registry) Handlers() []directive.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[directive.Handler]struct{}, len(r.entries))
	out := make([]directive.Handler, 0, len(r.entries))
	for _, e := range r.entries {
		if _, ok := seen[e.Handler]; ok {
			continue
		}
		seen[e.Handler] = struct{}{}
		out = append(out, e.Handler)
	}
	return out
}

// Len returns the number of registered directive types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear drops every registration.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[directive.NamespaceAndName]Entry)
}
