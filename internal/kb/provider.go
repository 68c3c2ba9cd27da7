// Package kb implements knowledge-base enrichment: a registry of named
// KBProvider backends and a domain-chain fallback enrichment routine
// (spec §4.3).
package kb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"annopipe/internal/logging"
	"annopipe/internal/pipelineerrors"
)

// Entry is one knowledge-base hit for a normalized entity text + type.
type Entry struct {
	KBID          string
	KBEntityID    string
	CanonicalName string
	Definition    string
	SemanticTypes []string
	// Relationships maps a relation label (e.g. "treats", "interacts_with")
	// to the canonical names of its targets.
	Relationships map[string][]string
}

// Provider is one pluggable knowledge base (e.g. UMLS, RxNorm, SNOMED).
type Provider interface {
	// Name identifies this provider in a domain's KB chain.
	Name() string
	// Lookup resolves a normalized (lowercased) entity text and type to a
	// KB entry. Returns pipelineerrors.ErrComponentNotFound on a clean miss.
	Lookup(ctx context.Context, normalizedText, entityType string) (Entry, error)
}

// Registry holds all available KB providers, thread-safe.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p Provider) error {
	if p.Name() == "" {
		return pipelineerrors.ErrComponentNameEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[p.Name()]; exists {
		return fmt.Errorf("%w: %s", pipelineerrors.ErrComponentAlreadyRegistered, p.Name())
	}
	r.providers[p.Name()] = p
	logging.KBDebug("registered KB provider: %s", p.Name())
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipelineerrors.ErrComponentNotFound, name)
	}
	return p, nil
}

// All returns every registered provider name, sorted.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
