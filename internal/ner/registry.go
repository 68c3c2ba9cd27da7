package ner

import (
	"fmt"
	"sort"
	"sync"

	"annopipe/internal/logging"
	"annopipe/internal/pipelineerrors"
)

// Registry holds all available NER models and their selection stats.
// Thread-safe; supports registration at runtime, generalized from
// internal/tools/registry.go's Tool/Registry pattern.
type Registry struct {
	mu     sync.RWMutex
	models map[string]NERModel
	stats  map[string]ModelStats
}

// NewRegistry creates a new empty NER model registry.
func NewRegistry() *Registry {
	return &Registry{
		models: make(map[string]NERModel),
		stats:  make(map[string]ModelStats),
	}
}

// Register adds a model to the registry with its selection stats.
func (r *Registry) Register(model NERModel, stats ModelStats) error {
	if model.Name() == "" {
		return pipelineerrors.ErrComponentNameEmpty
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[model.Name()]; exists {
		return fmt.Errorf("%w: %s", pipelineerrors.ErrComponentAlreadyRegistered, model.Name())
	}

	r.models[model.Name()] = model
	r.stats[model.Name()] = stats

	logging.NERDebug("registered NER model: %s", model.Name())
	return nil
}

// Get returns a model by name, or ErrComponentNotFound.
func (r *Registry) Get(name string) (NERModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pipelineerrors.ErrComponentNotFound, name)
	}
	return m, nil
}

// All returns every registered model name, sorted.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select ranks all registered models for a domain by Score and returns up
// to maxModels names meeting minF1, in descending score order. Models
// below minF1 for the domain, or whose AvgLatencyMS exceeds maxLatencyMS,
// are excluded entirely rather than merely penalized in scoring.
func (r *Registry) Select(domain string, minF1 float64, maxLatencyMS int64, minModels, maxModels int) ([]string, error) {
	r.mu.RLock()
	type scored struct {
		name  string
		score float64
	}
	candidates := make([]scored, 0, len(r.stats))
	for name, stats := range r.stats {
		if stats.F1ByDomain[domain] < minF1 {
			continue
		}
		if maxLatencyMS > 0 && stats.AvgLatencyMS > maxLatencyMS {
			continue
		}
		candidates = append(candidates, scored{name: name, score: stats.Score(domain, maxLatencyMS)})
	}
	r.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].name < candidates[j].name
	})

	if len(candidates) < minModels {
		return nil, fmt.Errorf("%w: domain=%s (need %d, have %d)", pipelineerrors.ErrNoModelsAvailable, domain, minModels, len(candidates))
	}

	if maxModels > 0 && len(candidates) > maxModels {
		candidates = candidates[:maxModels]
	}

	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.name
	}
	return names, nil
}
