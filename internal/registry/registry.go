// Package registry maps variant tags to constructors.
//
// Sources and storages are chosen by tag once at startup:
//
//	sources := registry.New[syncer.Source]("source")
//	sources.Register("fixture", func(o registry.Options) (syncer.Source, error) { ... })
//	src, err := sources.Build(cfg.Source.Type, cfg.Source.Options)
//
// An unknown tag is a configuration error.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/notacms/internal/syncer"
)

// Factory builds a variant from its options.
type Factory[T any] func(opts Options) (T, error)

// Registry stores factories keyed by lower-cased tag.
type Registry[T any] struct {
	kind string

	mu        sync.RWMutex
	factories map[string]Factory[T]
}

// New creates an empty registry. kind names the variant family in errors.
func New[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, factories: make(map[string]Factory[T])}
}

// Register stores f under name, guarding against duplicates.
func (r *Registry[T]) Register(name string, f Factory[T]) error {
	if f == nil {
		return fmt.Errorf("registry: %s %q factory is nil", r.kind, name)
	}
	if name == "" {
		return fmt.Errorf("registry: %s name must not be empty", r.kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(name)
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("registry: %s %q already registered", r.kind, name)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register for package-level wiring; it panics on error.
func (r *Registry[T]) MustRegister(name string, f Factory[T]) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Build constructs the variant registered under name.
func (r *Registry[T]) Build(name string, opts Options) (T, error) {
	r.mu.RLock()
	f := r.factories[strings.ToLower(name)]
	r.mu.RUnlock()

	if f == nil {
		var zero T
		return zero, syncer.NewConfigError(fmt.Sprintf("unknown %s type %q (known: %s)",
			r.kind, name, strings.Join(r.Names(), ", ")))
	}
	v, err := f(opts)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build %s %q: %w", r.kind, name, err)
	}
	return v, nil
}

// Names returns registered tags sorted alphabetically.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
