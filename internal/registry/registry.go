// Package registry holds the process-wide collection of known domains. The
// collection is self-locking: every call takes its own critical section, so
// callers never wrap it in an external lock. The registry guards membership
// only; per-domain runtime fields are protected by each domain's own lock.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/javanstorm/vfdriver/internal/domain"
)

var (
	ErrDuplicateDomain = errors.New("registry: domain already exists")
	ErrNotFound        = errors.New("registry: domain not found")
)

// Registry indexes domains by name and by UUID.
type Registry struct {
	mu     sync.Mutex
	byName map[string]*domain.Domain
	byUUID map[uuid.UUID]*domain.Domain
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		byName: make(map[string]*domain.Domain),
		byUUID: make(map[uuid.UUID]*domain.Domain),
	}
}

// Add inserts a domain. Fails if either the name or the UUID is taken; a
// failed Add leaves the registry unchanged.
func (r *Registry) Add(d *domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[d.Name()]; ok {
		return fmt.Errorf("%w: name %q", ErrDuplicateDomain, d.Name())
	}
	if _, ok := r.byUUID[d.UUID()]; ok {
		return fmt.Errorf("%w: uuid %s", ErrDuplicateDomain, d.UUID())
	}

	r.byName[d.Name()] = d
	r.byUUID[d.UUID()] = d
	return nil
}

// Remove deletes a domain. The caller is responsible for only removing
// domains whose runtime state is already torn down.
func (r *Registry) Remove(d *domain.Domain) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[d.Name()]; !ok {
		return fmt.Errorf("%w: name %q", ErrNotFound, d.Name())
	}

	delete(r.byName, d.Name())
	delete(r.byUUID, d.UUID())
	return nil
}

// FindByName returns the domain with the given name.
func (r *Registry) FindByName(name string) (*domain.Domain, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byName[name]
	return d, ok
}

// FindByUUID returns the domain with the given UUID.
func (r *Registry) FindByUUID(id uuid.UUID) (*domain.Domain, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byUUID[id]
	return d, ok
}

// List returns all domains sorted by name.
func (r *Registry) List() []*domain.Domain {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Domain, 0, len(r.byName))
	for _, d := range r.byName {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Len returns the number of registered domains.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}
