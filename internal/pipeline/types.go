// Package pipeline implements the orchestrator that composes the NER
// ensemble, KB enrichment, and pattern matcher stages into a single
// annotation pass over input text, under a bounded deadline.
package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// TrustLevel classifies how much a component's declared capabilities are
// to be believed. Ordered from least to most trusted.
type TrustLevel string

const (
	TrustBlocked    TrustLevel = "BLOCKED"
	TrustUntrusted  TrustLevel = "UNTRUSTED"
	TrustUnverified TrustLevel = "UNVERIFIED"
	TrustVerified   TrustLevel = "VERIFIED"
	TrustTrusted    TrustLevel = "TRUSTED"
)

// trustRank gives TrustLevel a total order for policy comparisons.
var trustRank = map[TrustLevel]int{
	TrustBlocked:    0,
	TrustUntrusted:  1,
	TrustUnverified: 2,
	TrustVerified:   3,
	TrustTrusted:    4,
}

// AtLeast reports whether t meets or exceeds the minimum required level.
func (t TrustLevel) AtLeast(min TrustLevel) bool {
	return trustRank[t] >= trustRank[min]
}

// SlotState is the hot-swap manager's lifecycle state for a component slot.
type SlotState string

const (
	SlotLoading  SlotState = "LOADING"
	SlotReady    SlotState = "READY"
	SlotDraining SlotState = "DRAINING"
	SlotRetired  SlotState = "RETIRED"
)

// ComponentKind distinguishes the three pluggable stage types.
type ComponentKind string

const (
	KindNERModel       ComponentKind = "NER_MODEL"
	KindKBProvider     ComponentKind = "KB_PROVIDER"
	KindPatternMatcher ComponentKind = "PATTERN_MATCHER"
)

// ComponentDescriptor is the static, declared identity of a pluggable
// component, independent of any running instance.
type ComponentDescriptor struct {
	Kind                ComponentKind     `json:"kind"`
	ID                  string            `json:"id"`
	Version             string            `json:"version"`
	SourceURL           string            `json:"source_url"`
	Domains             []string          `json:"domains"`
	DeclaredCapabilities map[string]string `json:"declared_capabilities"`
	Checksum            string            `json:"checksum"`
	TrustLevel          TrustLevel        `json:"trust_level"`
}

// ComponentSlot is the runtime home for one component instance: exactly one
// slot per (kind, id) may be in state READY at a time.
type ComponentSlot struct {
	Descriptor     ComponentDescriptor
	Instance       any
	ActiveRequests int64
	State          SlotState
}

// PerformanceSample is one observation fed to the self-optimizer, recorded
// once per component invocation.
type PerformanceSample struct {
	ComponentID    string    `json:"component_id"`
	Kind           ComponentKind `json:"kind"`
	Domain         string    `json:"domain"`
	LatencyMS      int64     `json:"latency_ms"`
	ThroughputEPS  float64   `json:"throughput_eps"` // entities per second
	AccuracyProxy  float64   `json:"accuracy_proxy"` // e.g. fraction of entities later validated
	Error          bool      `json:"error"`
	Timestamp      time.Time `json:"timestamp"`
}

// EntityRecord is a single typed, span-anchored annotation. Invariants
// (enforced by the orchestrator, never by the zero value):
//   - 0 <= Start < End <= len(original text)
//   - Confidence never decreases as SourceIDs/SourceStage accumulate
//   - SourceIDs is never empty once the record leaves the orchestrator
type EntityRecord struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`

	Start int `json:"start"`
	End   int `json:"end"`

	Confidence  float64  `json:"confidence"`
	SourceStage string   `json:"source_stage"` // "ner", "pattern", "kb"
	SourceIDs   []string `json:"source_ids"`   // component IDs that contributed

	NormalizedText string `json:"normalized_text,omitempty"`

	KBID           string              `json:"kb_id,omitempty"`
	KBEntityID     string              `json:"kb_entity_id,omitempty"`
	CanonicalName  string              `json:"canonical_name,omitempty"`
	Definition     string              `json:"definition,omitempty"`
	SemanticTypes  []string            `json:"semantic_types,omitempty"`
	Relationships  map[string][]string `json:"relationships,omitempty"` // relation label -> target names

	Validated bool           `json:"validated"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewEntityID mints a fresh EntityRecord.ID.
func NewEntityID() string {
	return uuid.NewString()
}

// StageFractions is the percentage-of-deadline budget for each stage; it
// need not sum to exactly 1.0, callers normalize.
type StageFractions struct {
	NER            float64
	Enrichment     float64
	Patterns       float64
	PostProcessing float64
}

// DomainSelection holds the per-domain NER/KB/pattern thresholds consumed
// by the orchestrator. It mirrors config.DomainProfile but lives in this
// package so the orchestrator and its tests need no config.Config;
// fromconfig.go is the one file of this package that imports the YAML
// config shape.
type DomainSelection struct {
	MinF1              float64
	MaxLatencyMS       int64
	MinModels          int
	MaxModels          int
	NERMinConfidence   float64
	EnsembleMode       string
	MinModelsForQuorum int

	KBChain                    []string
	MinConfidenceForEnrichment float64
	PerLookupTimeoutMS         int64
	MaxConcurrentLookups       int

	PatternMinConfidence float64
	AutoDetectDomain     bool

	DeduplicationEnabled bool
	MergeOverlapping     bool
}

// PipelineConfig is the fully-merged, immutable-per-request configuration:
// domain profile < file/env config < explicit per-request override, in
// increasing precedence.
type PipelineConfig struct {
	Domain          string
	DeadlineMS      int64
	StageFractions  StageFractions
	EnabledStages   []string
	MaxTextBytes    int
	Selection       DomainSelection
}

// Merge layers a per-request override on top of this config, returning a
// new PipelineConfig; the receiver and override are never mutated. Only
// explicitly non-zero scalar fields are taken from the override; the
// Selection and StageFractions blocks are taken wholesale whenever their
// hasValue method reports a non-zero field, since their slice-bearing
// fields can't be zero-compared.
func (c PipelineConfig) Merge(override *PipelineConfig) PipelineConfig {
	if override == nil {
		return c
	}
	merged := c
	if override.Domain != "" {
		merged.Domain = override.Domain
	}
	if override.DeadlineMS > 0 {
		merged.DeadlineMS = override.DeadlineMS
	}
	if override.StageFractions.hasValue() {
		merged.StageFractions = override.StageFractions
	}
	if len(override.EnabledStages) > 0 {
		merged.EnabledStages = override.EnabledStages
	}
	if override.MaxTextBytes > 0 {
		merged.MaxTextBytes = override.MaxTextBytes
	}
	if override.Selection.hasValue() {
		merged.Selection = override.Selection
	}
	return merged
}

// hasValue reports whether any field was explicitly set (all-zero is
// treated as "no override supplied").
func (f StageFractions) hasValue() bool {
	return f.NER != 0 || f.Enrichment != 0 || f.Patterns != 0 || f.PostProcessing != 0
}

// hasValue reports whether any numeric, string or slice field is non-zero.
// The boolean fields (AutoDetectDomain, DeduplicationEnabled,
// MergeOverlapping) are not consulted.
func (s DomainSelection) hasValue() bool {
	return s.MinF1 != 0 || s.MaxLatencyMS != 0 || s.MinModels != 0 || s.MaxModels != 0 ||
		s.NERMinConfidence != 0 || s.EnsembleMode != "" || s.MinModelsForQuorum != 0 ||
		len(s.KBChain) != 0 || s.MinConfidenceForEnrichment != 0 || s.PerLookupTimeoutMS != 0 ||
		s.MaxConcurrentLookups != 0 || s.PatternMinConfidence != 0
}

// StageTiming records how long one pipeline stage actually took.
type StageTiming struct {
	Stage      string `json:"stage"`
	DurationMS int64  `json:"duration_ms"`
	Exceeded   bool   `json:"exceeded"` // true if the stage blew its sub-deadline
}

// PipelineResult is the orchestrator's output for one Process call.
type PipelineResult struct {
	RequestID      string            `json:"request_id"`
	Entities       []EntityRecord    `json:"entities"` // ordered by (Start asc, End desc, Type lex)
	StageTimings   []StageTiming     `json:"stage_timings"`
	ComponentsUsed []string          `json:"components_used"`
	Warnings       []string          `json:"warnings"`
	Errors         []string          `json:"errors"`
	Cancelled      bool              `json:"cancelled"`
	TotalDurationMS int64            `json:"total_duration_ms"`
}
