package registry

import (
	"errors"
	"log/slog"
	"reflect"
	"sync"
)

// Key identifies a capability. Keys are assigned at interface-definition
// time and must be stable across releases ("plugbus/navigation",
// "orders/service").
type Key string

// ServiceEntry is the stored record for one capability.
type ServiceEntry struct {
	// Instance is the registered implementation. The registry does not
	// own its lifetime.
	Instance any

	// Version is the capability API version the instance provides.
	Version int

	// Provider identifies who registered the entry ("host", plugin id).
	Provider string
}

// Sentinel errors for registration.
var (
	// ErrNilInstance indicates Add was called with a nil instance.
	ErrNilInstance = errors.New("nil service instance")

	// ErrEmptyKey indicates Add was called with an empty capability key.
	ErrEmptyKey = errors.New("empty capability key")
)

// Registry is a thread-safe capability directory.
// The zero value is not usable; construct with New.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]ServiceEntry

	watchMu  sync.Mutex
	watchers map[int]func(Change)
	nextID   int

	logger *slog.Logger
}

// Change describes a registry mutation delivered to watchers.
type Change struct {
	// Key is the capability that changed.
	Key Key

	// Added is true for registrations, false for removals.
	Added bool

	// Provider is the entry's provider (empty on removal).
	Provider string
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries:  make(map[Key]ServiceEntry),
		watchers: make(map[int]func(Change)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add registers instance under key, replacing any existing entry.
//
// The type parameter C is the capability contract; the compiler rejects an
// instance that does not implement it, which is the registration-time
// contract check. A stored entry is later narrowed back to C by Get.
func Add[C any](r *Registry, key Key, instance C, version int, provider string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if isNil(instance) {
		return ErrNilInstance
	}

	r.mu.Lock()
	r.entries[key] = ServiceEntry{
		Instance: instance,
		Version:  version,
		Provider: provider,
	}
	r.mu.Unlock()

	r.logger.Debug("service registered",
		slog.String("key", string(key)),
		slog.Int("version", version),
		slog.String("provider", provider),
	)
	r.notify(Change{Key: key, Added: true, Provider: provider})
	return nil
}

// Get returns the instance registered under key, narrowed to capability C.
// It returns ok=false when no entry exists, the registered version is
// below minVersion, or the stored instance does not implement C.
//
// The capability assertion happens after the lock is released, so a
// misbehaving type assertion can never deadlock the registry.
func Get[C any](r *Registry, key Key, minVersion int) (C, bool) {
	var zero C

	r.mu.Lock()
	entry, ok := r.entries[key]
	r.mu.Unlock()

	if !ok || entry.Version < minVersion {
		return zero, false
	}

	c, ok := entry.Instance.(C)
	if !ok {
		return zero, false
	}
	return c, true
}

// Has reports whether key is registered with at least minVersion.
func (r *Registry) Has(key Key, minVersion int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	return ok && entry.Version >= minVersion
}

// Raw returns the stored instance without capability narrowing.
// Consumers that need the concrete object's full surface (a binding
// layer) use this instead of Get.
func (r *Registry) Raw(key Key) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return entry.Instance, true
}

// Entry returns the full stored record for key.
func (r *Registry) Entry(key Key) (ServiceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	return entry, ok
}

// Remove deletes the entry for key. It returns false when no entry exists.
func (r *Registry) Remove(key Key) bool {
	r.mu.Lock()
	_, ok := r.entries[key]
	if ok {
		delete(r.entries, key)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}

	r.logger.Debug("service removed", slog.String("key", string(key)))
	r.notify(Change{Key: key, Added: false})
	return true
}

// RemoveAll deletes every entry registered by provider and returns the
// removed keys. A module being unloaded uses this for bulk cleanup.
func (r *Registry) RemoveAll(provider string) []Key {
	r.mu.Lock()
	var removed []Key
	for key, entry := range r.entries {
		if entry.Provider == provider {
			removed = append(removed, key)
			delete(r.entries, key)
		}
	}
	r.mu.Unlock()

	for _, key := range removed {
		r.notify(Change{Key: key, Added: false})
	}
	if len(removed) > 0 {
		r.logger.Debug("services removed by provider",
			slog.String("provider", provider),
			slog.Int("count", len(removed)),
		)
	}
	return removed
}

// Keys returns all registered capability keys. Order is not guaranteed.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]Key, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	return keys
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Watch registers fn to receive registry changes. The returned cancel
// function removes the watcher. Callbacks run on the mutating goroutine,
// outside the registry lock.
func (r *Registry) Watch(fn func(Change)) (cancel func()) {
	r.watchMu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = fn
	r.watchMu.Unlock()

	return func() {
		r.watchMu.Lock()
		delete(r.watchers, id)
		r.watchMu.Unlock()
	}
}

func (r *Registry) notify(ch Change) {
	r.watchMu.Lock()
	fns := make([]func(Change), 0, len(r.watchers))
	for _, fn := range r.watchers {
		fns = append(fns, fn)
	}
	r.watchMu.Unlock()

	for _, fn := range fns {
		fn(ch)
	}
}

// isNil reports whether v is nil, including a typed nil pointer boxed in
// the interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
