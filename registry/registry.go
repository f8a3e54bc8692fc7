// Package registry is the explicit registration table mapping a
// (view model, entity, create model, update model) combination to its
// manager bundle. It is built at startup and sealed by Initialize.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/goliatone/go-errors"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/pipeline"
	"github.com/goliatone/go-mutation/store"
)

type comboKey[V, E, C, U any] struct{}

type entry struct {
	name    string
	combo   string
	manager any
	missing func() []string
}

// Registry holds manager bundles grouped by type combination.
type Registry struct {
	mu          sync.RWMutex
	entries     map[any][]entry
	initialized bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[any][]entry)}
}

var globalRegistry = New()

// Default returns the process registry used by the package-level helpers.
func Default() *Registry {
	return globalRegistry
}

// WithTestRegistry swaps the process registry for the duration of fn.
func WithTestRegistry(fn func()) {
	old := globalRegistry
	defer func() { globalRegistry = old }()
	globalRegistry = New()
	fn()
}

// Register adds m to r under its type combination. Registration is closed
// once the registry is initialized.
func Register[V any, E mutation.Entity, C any, U any](r *Registry, m pipeline.Manager[V, E, C, U]) error {
	if mutation.IsNil(m) {
		return errors.New("manager cannot be nil", errors.CategoryBadInput).
			WithTextCode("NIL_MANAGER")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return errors.New("cannot register managers after registry has been initialized", errors.CategoryConflict).
			WithTextCode("REGISTRY_ALREADY_INITIALIZED")
	}

	key := comboKey[V, E, C, U]{}
	for _, existing := range r.entries[key] {
		if existing.name == m.Name() {
			return errors.New("manager already registered", errors.CategoryConflict).
				WithTextCode("MANAGER_ALREADY_REGISTERED").
				WithMetadata(map[string]any{"manager": m.Name()})
		}
	}
	r.entries[key] = append(r.entries[key], entry{
		name:    m.Name(),
		combo:   comboName[V, E, C, U](),
		manager: m,
		missing: func() []string { return missingCollaborators(m) },
	})
	return nil
}

func missingCollaborators[V any, E mutation.Entity, C any, U any](m pipeline.Manager[V, E, C, U]) []string {
	var missing []string
	if mutation.IsNil(m.CreateMapper()) {
		missing = append(missing, "create mapper")
	}
	if mutation.IsNil(m.UpdateMapper()) {
		missing = append(missing, "update mapper")
	}
	if mutation.IsNil(m.ViewMapper()) {
		missing = append(missing, "view mapper")
	}
	return missing
}

// Initialize checks every registered manager for its required collaborators
// and seals the registry. A registry with invalid managers stays open.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return errors.New("registry already initialized", errors.CategoryConflict).
			WithTextCode("REGISTRY_ALREADY_INITIALIZED")
	}

	var problems []string
	for _, entries := range r.entries {
		for _, e := range entries {
			for _, name := range e.missing() {
				problems = append(problems, fmt.Sprintf("%s (%s): %s is required", e.name, e.combo, name))
			}
		}
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return errors.New("invalid manager registrations", errors.CategoryValidation).
			WithTextCode("MANAGER_INVALID").
			WithMetadata(map[string]any{"problems": problems})
	}

	r.initialized = true
	return nil
}

// Entry describes one registered manager.
type Entry struct {
	Name  string
	Combo string
}

// Entries lists registered managers sorted by combination then name.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for _, entries := range r.entries {
		for _, e := range entries {
			out = append(out, Entry{Name: e.name, Combo: e.combo})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Combo != out[j].Combo {
			return out[i].Combo < out[j].Combo
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ResolveOption narrows which manager Resolve returns.
type ResolveOption func(*resolveConfig)

type resolveConfig struct {
	name     string
	selector any
}

// WithName picks the manager registered under name.
func WithName(name string) ResolveOption {
	return func(c *resolveConfig) {
		c.name = name
	}
}

// WithSelector picks one manager among several registered for the same
// combination. Returning nil falls back to the first registered.
func WithSelector[V any, E mutation.Entity, C any, U any](fn func([]pipeline.Manager[V, E, C, U]) pipeline.Manager[V, E, C, U]) ResolveOption {
	return func(c *resolveConfig) {
		c.selector = fn
	}
}

// Resolve returns the manager registered for the combination. With several
// candidates and no option, the first registered wins.
func Resolve[V any, E mutation.Entity, C any, U any](r *Registry, opts ...ResolveOption) (pipeline.Manager[V, E, C, U], error) {
	cfg := resolveConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	r.mu.RLock()
	initialized := r.initialized
	entries := append([]entry(nil), r.entries[comboKey[V, E, C, U]{}]...)
	r.mu.RUnlock()

	if !initialized {
		return nil, errors.New("registry not initialized", errors.CategoryConflict).
			WithTextCode("REGISTRY_NOT_INITIALIZED")
	}
	if len(entries) == 0 {
		return nil, errors.New("no manager registered", errors.CategoryNotFound).
			WithTextCode("MANAGER_NOT_FOUND").
			WithMetadata(map[string]any{"combo": comboName[V, E, C, U]()})
	}

	managers := make([]pipeline.Manager[V, E, C, U], 0, len(entries))
	for _, e := range entries {
		m := e.manager.(pipeline.Manager[V, E, C, U])
		if cfg.name != "" && e.name == cfg.name {
			return m, nil
		}
		managers = append(managers, m)
	}
	if cfg.name != "" {
		return nil, errors.New("no manager registered under name", errors.CategoryNotFound).
			WithTextCode("MANAGER_NOT_FOUND").
			WithMetadata(map[string]any{"combo": comboName[V, E, C, U](), "manager": cfg.name})
	}

	if selector, ok := cfg.selector.(func([]pipeline.Manager[V, E, C, U]) pipeline.Manager[V, E, C, U]); ok && selector != nil {
		if selected := selector(managers); !mutation.IsNil(selected) {
			return selected, nil
		}
	}
	return managers[0], nil
}

// Writable resolves a manager and wires it to uow.
func Writable[V any, E mutation.Entity, C any, U any](r *Registry, uow store.UnitOfWork[E], resolve []ResolveOption, opts ...pipeline.Option) (*pipeline.Writable[V, E, C, U], error) {
	m, err := Resolve[V, E, C, U](r, resolve...)
	if err != nil {
		return nil, err
	}
	return pipeline.NewWritable[V, E, C, U](uow, m, opts...)
}

func comboName[V, E, C, U any]() string {
	var (
		v *V
		e *E
		c *C
		u *U
	)
	return fmt.Sprintf("%T|%T|%T|%T", v, e, c, u)
}
