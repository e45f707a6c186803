package provider

import (
	"fmt"
	"sync"

	"github.com/josh-kwaku/settlement-engine/internal/domain"
)

// Constructor builds a client for one provider configuration record.
type Constructor func(cfg Config, deps Deps) (Provider, error)

// Registry maps provider slugs to constructors. It is filled at start-up.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
	deps  Deps
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{ctors: make(map[string]Constructor), deps: deps.WithDefaults()}
}

func (r *Registry) Register(slug string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[slug] = ctor
}

func (r *Registry) Resolve(pt domain.PaymentType) (Provider, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[pt.Slug]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("Resolve: %q: %w", pt.Slug, domain.ErrUnknownProvider)
	}
	p, err := ctor(ConfigFromType(pt), r.deps)
	if err != nil {
		return nil, fmt.Errorf("Resolve: %q: %w", pt.Slug, err)
	}
	return p, nil
}

func (r *Registry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.ctors))
	for s := range r.ctors {
		out = append(out, s)
	}
	return out
}
