package config

// DomainProfile defines per-domain-tag pipeline configuration. Each domain
// ("medical", "legal", "scientific", ...) can tune NER selection, KB
// enrichment, and pattern/post-processing behavior independently.
type DomainProfile struct {
	// NER ensemble selection (spec §4.2 scoring/quorum).
	MinF1              float64 `yaml:"min_f1" json:"min_f1"`
	MaxLatencyMS       int64   `yaml:"max_latency_ms" json:"max_latency_ms"`
	MinModels          int     `yaml:"min_models" json:"min_models"`
	MaxModels          int     `yaml:"max_models" json:"max_models"`
	NERMinConfidence   float64 `yaml:"ner_min_confidence" json:"ner_min_confidence"`
	EnsembleMode       string  `yaml:"ensemble_mode" json:"ensemble_mode"` // "vote", "first", "union"
	MinModelsForQuorum int     `yaml:"min_models_for_quorum" json:"min_models_for_quorum"`

	// KB enrichment (spec §4.3 chain fallback).
	KBChain                    []string `yaml:"kb_chain" json:"kb_chain"`
	MinConfidenceForEnrichment float64  `yaml:"min_confidence_for_enrichment" json:"min_confidence_for_enrichment"`
	PerLookupTimeoutMS         int64    `yaml:"per_lookup_timeout_ms" json:"per_lookup_timeout_ms"`
	MaxConcurrentLookups       int      `yaml:"max_concurrent_lookups" json:"max_concurrent_lookups"`

	// Pattern matcher (spec §4.4).
	PatternMinConfidence float64 `yaml:"pattern_min_confidence" json:"pattern_min_confidence"`
	AutoDetectDomain     bool    `yaml:"auto_detect_domain" json:"auto_detect_domain"`

	// Post-processing (spec §4.1 dedup/overlap).
	DeduplicationEnabled bool `yaml:"deduplication_enabled" json:"deduplication_enabled"`
	MergeOverlapping     bool `yaml:"merge_overlapping" json:"merge_overlapping"`
}

// applyDomainDefaults fills in zero values with defaults, mirroring the
// ensemble/enrichment thresholds named in spec.md.
func applyDomainDefaults(p DomainProfile) DomainProfile {
	if p.MinF1 == 0 {
		p.MinF1 = 0.6
	}
	if p.MaxLatencyMS == 0 {
		p.MaxLatencyMS = 2000
	}
	if p.MinModels == 0 {
		p.MinModels = 1
	}
	if p.MaxModels == 0 {
		p.MaxModels = 3
	}
	if p.NERMinConfidence == 0 {
		p.NERMinConfidence = 0.7
	}
	if p.EnsembleMode == "" {
		p.EnsembleMode = "vote"
	}
	if p.MinModelsForQuorum == 0 {
		p.MinModelsForQuorum = 1
	}
	if len(p.KBChain) == 0 {
		p.KBChain = []string{"default"}
	}
	if p.MinConfidenceForEnrichment == 0 {
		p.MinConfidenceForEnrichment = 0.5
	}
	if p.PerLookupTimeoutMS == 0 {
		p.PerLookupTimeoutMS = 5000
	}
	if p.MaxConcurrentLookups == 0 {
		p.MaxConcurrentLookups = 10
	}
	if p.PatternMinConfidence == 0 {
		p.PatternMinConfidence = 0.5
	}
	return p
}
