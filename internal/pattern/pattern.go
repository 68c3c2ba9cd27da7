// Package pattern implements the structured pattern matcher stage: a
// registry of regex/rule-based patterns, context-window confidence
// adjustment, per-pattern validation, and overlap resolution (spec §4.4).
package pattern

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"annopipe/internal/logging"
	"annopipe/internal/pipelineerrors"
)

// Match is one pattern hit before confidence adjustment/validation.
type Match struct {
	Text       string
	Type       string
	Start      int
	End        int
	Confidence float64
	Validated  bool
}

// ValidateFunc checks whether a raw regex match is structurally valid
// (e.g. a Luhn check on a matched card number). A pattern without a
// ValidateFunc is always considered Validated.
type ValidateFunc func(text string) bool

// Pattern is one named structured extraction rule.
type Pattern struct {
	Name             string
	Type             string
	Regex            *regexp.Regexp
	BaseConfidence   float64
	SupportingWords  []string // within the ±40-char context window, boosts confidence
	NegatingWords    []string // within the context window, reduces confidence
	Validate         ValidateFunc
	Normalize        func(text string) string
}

const contextWindow = 40

const (
	supportBoost  = 0.15
	negatePenalty = 0.20
	invalidPenalty = 0.20
)

// Registry holds all registered patterns, thread-safe.
type Registry struct {
	mu       sync.RWMutex
	patterns map[string]*Pattern
}

// NewRegistry creates an empty pattern registry.
func NewRegistry() *Registry {
	return &Registry{patterns: make(map[string]*Pattern)}
}

// Register adds a pattern to the registry.
func (r *Registry) Register(p *Pattern) error {
	if p.Name == "" {
		return pipelineerrors.ErrComponentNameEmpty
	}
	if p.Regex == nil {
		return fmt.Errorf("pattern %s: regex cannot be nil", p.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.patterns[p.Name]; exists {
		return fmt.Errorf("%w: %s", pipelineerrors.ErrComponentAlreadyRegistered, p.Name)
	}
	r.patterns[p.Name] = p
	logging.PatternDebug("registered pattern: %s (type=%s)", p.Name, p.Type)
	return nil
}

// All returns every registered pattern name, sorted.
func (r *Registry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.patterns))
	for name := range r.patterns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run evaluates every registered pattern against text and returns all
// matches above minConfidence, sorted by (Start asc, End desc).
func (r *Registry) Run(text string, minConfidence float64) []Match {
	r.mu.RLock()
	patterns := make([]*Pattern, 0, len(r.patterns))
	for _, p := range r.patterns {
		patterns = append(patterns, p)
	}
	r.mu.RUnlock()

	var results []Match
	for _, p := range patterns {
		locs := p.Regex.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			start, end := loc[0], loc[1]
			raw := text[start:end]

			confidence := p.BaseConfidence
			confidence += contextAdjustment(text, start, end, p.SupportingWords, p.NegatingWords)

			validated := true
			if p.Validate != nil {
				validated = p.Validate(raw)
				if !validated {
					confidence -= invalidPenalty
				}
			}

			if confidence < 0 {
				confidence = 0
			}
			if confidence > 1 {
				confidence = 1
			}
			if confidence < minConfidence {
				continue
			}

			normalized := raw
			if p.Normalize != nil {
				normalized = p.Normalize(raw)
			}

			results = append(results, Match{
				Text:       normalized,
				Type:       p.Type,
				Start:      start,
				End:        end,
				Confidence: confidence,
				Validated:  validated,
			})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Start != results[j].Start {
			return results[i].Start < results[j].Start
		}
		return results[i].End > results[j].End
	})

	return results
}

// contextAdjustment scans the ±40-char window around [start,end) for
// supporting/negating keywords and returns the net confidence delta.
func contextAdjustment(text string, start, end int, supporting, negating []string) float64 {
	winStart := start - contextWindow
	if winStart < 0 {
		winStart = 0
	}
	winEnd := end + contextWindow
	if winEnd > len(text) {
		winEnd = len(text)
	}
	window := strings.ToLower(text[winStart:winEnd])

	var delta float64
	for _, w := range supporting {
		if strings.Contains(window, strings.ToLower(w)) {
			delta += supportBoost
			break
		}
	}
	for _, w := range negating {
		if strings.Contains(window, strings.ToLower(w)) {
			delta -= negatePenalty
			break
		}
	}
	return delta
}

// ResolveOverlaps implements spec §4.1's overlap-resolution rule: a
// validated pattern span that fully contains an NER span wins over it;
// otherwise matches are kept as-is (the orchestrator's post-processing
// stage performs the final merge across all three extractor stages).
func ResolveOverlaps(matches []Match) []Match {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return matches[i].End > matches[j].End
	})

	var kept []Match
	for _, m := range matches {
		contained := false
		for i, k := range kept {
			if k.Start <= m.Start && m.End <= k.End && k.Validated {
				contained = true
				break
			}
			if m.Start <= k.Start && k.End <= m.End && m.Validated {
				kept[i] = m
				contained = true
				break
			}
		}
		if !contained {
			kept = append(kept, m)
		}
	}
	return kept
}
