// Package ner implements the NER ensemble: a thread-safe registry of named
// NERModel implementations plus selection scoring and vote-fusion logic,
// generalized from internal/tools/registry.go's Tool/Registry pattern.
package ner

import "context"

// Span is a single extracted entity mention, before fusion.
type Span struct {
	Text       string
	Type       string
	Start      int
	End        int
	Confidence float64
}

// NERModel is one pluggable named-entity recognizer.
type NERModel interface {
	// Name uniquely identifies this model within the registry.
	Name() string
	// Extract runs named-entity recognition over text for the given domain.
	Extract(ctx context.Context, text string, domain string) ([]Span, error)
}

// ModelStats is the static/aggregated profile used by selection scoring
// (spec §4.2): f1(domain), latency_weight, provider_weight, coverage(domain).
type ModelStats struct {
	Name           string
	F1ByDomain     map[string]float64
	AvgLatencyMS   int64
	ProviderWeight float64 // operator-assigned trust/preference weight in [0,1]
	CoverageByDomain map[string]float64
}

// Score computes the ensemble selection score for a domain:
//
//	score = 0.40*f1(domain) + 0.30*latency_weight + 0.20*provider_weight + 0.10*coverage(domain)
//
// latency_weight is derived as 1 - min(1, AvgLatencyMS/maxLatencyMS).
func (s ModelStats) Score(domain string, maxLatencyMS int64) float64 {
	f1 := s.F1ByDomain[domain]
	coverage := s.CoverageByDomain[domain]

	latencyWeight := 1.0
	if maxLatencyMS > 0 {
		ratio := float64(s.AvgLatencyMS) / float64(maxLatencyMS)
		if ratio > 1 {
			ratio = 1
		}
		latencyWeight = 1 - ratio
	}

	return 0.40*f1 + 0.30*latencyWeight + 0.20*s.ProviderWeight + 0.10*coverage
}
