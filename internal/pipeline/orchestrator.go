package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"annopipe/internal/kb"
	"annopipe/internal/logging"
	"annopipe/internal/ner"
	"annopipe/internal/pattern"
	"annopipe/internal/pipelineerrors"
)

// Orchestrator composes the NER ensemble, KB enrichment, and pattern
// matcher into a single bounded-deadline annotation pass (spec §4.1),
// allocating each stage a percentage of the overall deadline the same way
// the reference's TieredContextBuilder allocates a percentage budget to
// each retrieval tier.
type Orchestrator struct {
	NER      *ner.Registry
	KB       *kb.Registry
	Cache    kb.Cache
	Patterns *pattern.Registry

	// MaxConcurrentKBCalls is a process-wide ceiling on concurrent KB
	// lookups, applied on top of (never above) a domain's own
	// Selection.MaxConcurrentLookups. Zero means no process-wide ceiling.
	MaxConcurrentKBCalls int
}

// NewOrchestrator wires the three stage registries together.
func NewOrchestrator(nerReg *ner.Registry, kbReg *kb.Registry, cache kb.Cache, patternReg *pattern.Registry) *Orchestrator {
	return &Orchestrator{NER: nerReg, KB: kbReg, Cache: cache, Patterns: patternReg}
}

// Process runs one full annotation pass over text under cfg. It always
// returns a best-effort PipelineResult, even when a stage's sub-deadline
// is exceeded: a stage that runs out of budget returns its partial result
// with Exceeded=true rather than failing the whole request.
func (o *Orchestrator) Process(ctx context.Context, requestID, text string, cfg PipelineConfig) (*PipelineResult, error) {
	start := time.Now()
	rlog := logging.WithRequestID(logging.CategoryOrchestrator, requestID)
	audit := logging.AuditWithRequest(requestID)

	if len(text) == 0 {
		return nil, fmt.Errorf("%w: empty text", pipelineerrors.ErrConfigInvalid)
	}
	if cfg.MaxTextBytes > 0 && len(text) > cfg.MaxTextBytes {
		return nil, fmt.Errorf("%w: text exceeds max_text_bytes=%d", pipelineerrors.ErrConfigInvalid, cfg.MaxTextBytes)
	}

	result := &PipelineResult{RequestID: requestID}

	overallCtx := ctx
	var cancel context.CancelFunc
	if cfg.DeadlineMS > 0 {
		overallCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.DeadlineMS)*time.Millisecond)
		defer cancel()
	}

	budgets := allocateBudgets(cfg.DeadlineMS, cfg.StageFractions)

	var nerEntities []EntityRecord
	if stageEnabled(cfg.EnabledStages, "ner") {
		entities, timing := o.runNERStage(overallCtx, requestID, text, cfg, budgets["ner"])
		nerEntities = entities
		result.StageTimings = append(result.StageTimings, timing)
		if timing.Exceeded {
			result.Warnings = append(result.Warnings, "ner stage exceeded its sub-deadline, returning partial results")
			audit.StageDeadlineExceeded(requestID, "ner", timing.DurationMS)
		} else {
			audit.StageComplete(requestID, "ner", timing.DurationMS)
		}
	}

	if stageEnabled(cfg.EnabledStages, "enrichment") && len(nerEntities) > 0 {
		timing := o.runEnrichmentStage(overallCtx, requestID, nerEntities, cfg, budgets["enrichment"])
		result.StageTimings = append(result.StageTimings, timing)
		if timing.Exceeded {
			result.Warnings = append(result.Warnings, "enrichment stage exceeded its sub-deadline, returning partial results")
			audit.StageDeadlineExceeded(requestID, "enrichment", timing.DurationMS)
		} else {
			audit.StageComplete(requestID, "enrichment", timing.DurationMS)
		}
	}

	var patternMatches []pattern.Match
	if stageEnabled(cfg.EnabledStages, "patterns") {
		matches, timing := o.runPatternStage(overallCtx, text, cfg, budgets["patterns"])
		patternMatches = matches
		result.StageTimings = append(result.StageTimings, timing)
		if timing.Exceeded {
			result.Warnings = append(result.Warnings, "pattern stage exceeded its sub-deadline, returning partial results")
			audit.StageDeadlineExceeded(requestID, "patterns", timing.DurationMS)
		} else {
			audit.StageComplete(requestID, "patterns", timing.DurationMS)
		}
	}

	ppStart := time.Now()
	merged := mergeStages(nerEntities, patternMatches, cfg.Selection.DeduplicationEnabled, cfg.Selection.MergeOverlapping)
	result.Entities = merged
	result.StageTimings = append(result.StageTimings, StageTiming{
		Stage:      "post_processing",
		DurationMS: time.Since(ppStart).Milliseconds(),
	})

	result.Cancelled = overallCtx.Err() != nil
	result.TotalDurationMS = time.Since(start).Milliseconds()
	rlog.Info("processed request: %d entities, %dms, cancelled=%v", len(result.Entities), result.TotalDurationMS, result.Cancelled)
	audit.RequestComplete(requestID, result.TotalDurationMS, len(result.Errors) == 0)

	return result, nil
}

func stageEnabled(enabled []string, stage string) bool {
	if len(enabled) == 0 {
		return true
	}
	for _, s := range enabled {
		if s == stage {
			return true
		}
	}
	return false
}

// allocateBudgets turns a deadline and StageFractions into a per-stage
// time.Duration map. Fractions are normalized against their sum so callers
// need not supply values that add to exactly 1.0.
func allocateBudgets(deadlineMS int64, f StageFractions) map[string]time.Duration {
	if deadlineMS <= 0 {
		return map[string]time.Duration{"ner": 0, "enrichment": 0, "patterns": 0}
	}
	sum := f.NER + f.Enrichment + f.Patterns + f.PostProcessing
	if sum <= 0 {
		sum = 1.0
		f = StageFractions{NER: 0.50, Enrichment: 0.35, Patterns: 0.10, PostProcessing: 0.05}
	}
	total := time.Duration(deadlineMS) * time.Millisecond
	return map[string]time.Duration{
		"ner":        time.Duration(float64(total) * f.NER / sum),
		"enrichment": time.Duration(float64(total) * f.Enrichment / sum),
		"patterns":   time.Duration(float64(total) * f.Patterns / sum),
	}
}

func (o *Orchestrator) runNERStage(ctx context.Context, requestID, text string, cfg PipelineConfig, budget time.Duration) ([]EntityRecord, StageTiming) {
	start := time.Now()
	stageCtx := ctx
	var cancel context.CancelFunc
	if budget > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	sel := cfg.Selection
	modelNames, err := o.NER.Select(cfg.Domain, sel.MinF1, sel.MaxLatencyMS, sel.MinModels, sel.MaxModels)
	if err != nil {
		logging.NERWarn("request %s: model selection failed: %v", requestID, err)
		return nil, StageTiming{Stage: "ner", DurationMS: time.Since(start).Milliseconds()}
	}

	spans, err := o.NER.Run(stageCtx, modelNames, text, cfg.Domain, sel.MinModelsForQuorum, sel.NERMinConfidence)
	exceeded := stageCtx.Err() != nil
	if err != nil && !exceeded {
		logging.NERWarn("request %s: ensemble run failed: %v", requestID, err)
	}

	entities := make([]EntityRecord, 0, len(spans))
	for _, s := range spans {
		entities = append(entities, EntityRecord{
			ID:         NewEntityID(),
			Text:       s.Text,
			Type:       s.Type,
			Start:      s.Start,
			End:        s.End,
			Confidence: s.Confidence,
			SourceStage: "ner",
			SourceIDs:  modelNames,
		})
	}

	return entities, StageTiming{Stage: "ner", DurationMS: time.Since(start).Milliseconds(), Exceeded: exceeded}
}

func (o *Orchestrator) runEnrichmentStage(ctx context.Context, requestID string, entities []EntityRecord, cfg PipelineConfig, budget time.Duration) StageTiming {
	start := time.Now()
	stageCtx := ctx
	var cancel context.CancelFunc
	if budget > 0 {
		stageCtx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}

	sel := cfg.Selection
	perLookupTimeout := time.Duration(sel.PerLookupTimeoutMS) * time.Millisecond
	if perLookupTimeout <= 0 {
		perLookupTimeout = 500 * time.Millisecond
	}
	maxConcurrent := sel.MaxConcurrentLookups
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	if o.MaxConcurrentKBCalls > 0 && maxConcurrent > o.MaxConcurrentKBCalls {
		maxConcurrent = o.MaxConcurrentKBCalls
	}
	chainKey := cfg.Domain + ":" + strings.Join(sel.KBChain, ",")

	g, gctx := errgroup.WithContext(stageCtx)
	sem := make(chan struct{}, maxConcurrent)

	for i := range entities {
		i := i
		if entities[i].Confidence < sel.MinConfidenceForEnrichment {
			continue
		}
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sem }()

			entry, ok := kb.Enrich(gctx, o.KB, o.Cache, chainKey, sel.KBChain, entities[i].Text, entities[i].Type, perLookupTimeout)
			if !ok {
				return nil
			}
			entities[i].KBID = entry.KBID
			entities[i].KBEntityID = entry.KBEntityID
			entities[i].CanonicalName = entry.CanonicalName
			entities[i].Definition = entry.Definition
			entities[i].SemanticTypes = entry.SemanticTypes
			entities[i].Relationships = entry.Relationships
			return nil
		})
	}
	_ = g.Wait()

	exceeded := stageCtx.Err() != nil
	if exceeded {
		logging.KBWarn("request %s: enrichment stage deadline exceeded", requestID)
	}
	return StageTiming{Stage: "enrichment", DurationMS: time.Since(start).Milliseconds(), Exceeded: exceeded}
}

func (o *Orchestrator) runPatternStage(ctx context.Context, text string, cfg PipelineConfig, budget time.Duration) ([]pattern.Match, StageTiming) {
	start := time.Now()

	done := make(chan []pattern.Match, 1)
	go func() {
		matches := o.Patterns.Run(text, cfg.Selection.PatternMinConfidence)
		done <- pattern.ResolveOverlaps(matches)
	}()

	var timer <-chan time.Time
	if budget > 0 {
		t := time.NewTimer(budget)
		defer t.Stop()
		timer = t.C
	}

	select {
	case matches := <-done:
		return matches, StageTiming{Stage: "patterns", DurationMS: time.Since(start).Milliseconds()}
	case <-timer:
		return nil, StageTiming{Stage: "patterns", DurationMS: time.Since(start).Milliseconds(), Exceeded: true}
	case <-ctx.Done():
		return nil, StageTiming{Stage: "patterns", DurationMS: time.Since(start).Milliseconds(), Exceeded: true}
	}
}

// mergeStages folds pattern matches into the NER/KB entity list. When
// mergeOverlapping is set, a validated pattern span fully containing an NER
// span wins over it (spec §4.1); when dedup is set, records are collapsed by
// (start, end, canonical type). The result is always sorted by
// (Start asc, End desc, Type lex).
func mergeStages(entities []EntityRecord, matches []pattern.Match, dedup, mergeOverlapping bool) []EntityRecord {
	for _, m := range matches {
		entities = append(entities, EntityRecord{
			ID:             NewEntityID(),
			Text:           m.Text,
			Type:           m.Type,
			Start:          m.Start,
			End:            m.End,
			Confidence:     m.Confidence,
			SourceStage:    "pattern",
			SourceIDs:      []string{"pattern"},
			NormalizedText: m.Text,
			Validated:      m.Validated,
		})
	}

	if mergeOverlapping {
		entities = resolveEntityOverlaps(entities)
	}

	if dedup {
		entities = dedupEntities(entities)
	}

	sort.Slice(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		if entities[i].End != entities[j].End {
			return entities[i].End > entities[j].End
		}
		return entities[i].Type < entities[j].Type
	})

	return entities
}

// resolveEntityOverlaps drops a non-pattern span that is fully contained
// within a validated pattern span. It is order-independent: every
// validated pattern span in entities is collected up front, then every
// non-pattern entity is checked against the full set, so the result does
// not depend on whether the NER or pattern stage happened to append its
// entities first.
func resolveEntityOverlaps(entities []EntityRecord) []EntityRecord {
	var patternSpans []EntityRecord
	for _, e := range entities {
		if e.SourceStage == "pattern" && e.Validated {
			patternSpans = append(patternSpans, e)
		}
	}

	var kept []EntityRecord
	for _, e := range entities {
		contained := false
		if e.SourceStage != "pattern" {
			for _, p := range patternSpans {
				if p.Start <= e.Start && e.End <= p.End {
					contained = true
					break
				}
			}
		}
		if !contained {
			kept = append(kept, e)
		}
	}
	return kept
}

// entityTypeAliases collapses entity types that name the same underlying
// concept onto one canonical type for dedup purposes (spec §4.1 rule 1):
// a pattern matcher and an NER model can legitimately disagree on the
// label for the same span (e.g. CHEMICAL vs DRUG) without that being two
// distinct entities.
var entityTypeAliases = map[string]string{
	"CHEMICAL":   "DRUG",
	"SUBSTANCE":  "DRUG",
	"MEDICATION": "DRUG",
}

// canonicalEntityType collapses t under entityTypeAliases, or returns it
// unchanged if it has no alias.
func canonicalEntityType(t string) string {
	if canon, ok := entityTypeAliases[t]; ok {
		return canon
	}
	return t
}

// dedupEntities collapses (start, end, canonical type) duplicates into a
// single merged record per spec §4.1 rule 1.
func dedupEntities(entities []EntityRecord) []EntityRecord {
	type key struct {
		start int
		end   int
		typ   string
	}
	byKey := make(map[key]*EntityRecord)
	order := make([]key, 0, len(entities))

	for _, e := range entities {
		k := key{start: e.Start, end: e.End, typ: canonicalEntityType(e.Type)}
		existing, ok := byKey[k]
		if !ok {
			ec := e
			byKey[k] = &ec
			order = append(order, k)
			continue
		}
		merged := mergeEntities(*existing, e)
		*existing = merged
	}

	result := make([]EntityRecord, 0, len(order))
	for _, k := range order {
		result = append(result, *byKey[k])
	}
	return result
}

// mergeEntities combines two duplicate records into one: the result keeps
// the higher confidence and the union of source_ids; its remaining
// identity fields (type, text, KB enrichment) come from whichever input
// wins the tie-break, preferring validated=true, then the longer
// canonical_name.
func mergeEntities(a, b EntityRecord) EntityRecord {
	winner, loser := a, b
	if preferEntity(b, a) {
		winner, loser = b, a
	}

	merged := winner
	merged.SourceIDs = nil
	seen := make(map[string]bool, len(a.SourceIDs)+len(b.SourceIDs))
	for _, id := range append(append([]string{}, a.SourceIDs...), b.SourceIDs...) {
		if !seen[id] {
			seen[id] = true
			merged.SourceIDs = append(merged.SourceIDs, id)
		}
	}
	merged.Confidence = a.Confidence
	if b.Confidence > merged.Confidence {
		merged.Confidence = b.Confidence
	}
	if merged.KBID == "" && loser.KBID != "" {
		merged.KBID = loser.KBID
		merged.CanonicalName = loser.CanonicalName
		merged.Definition = loser.Definition
		merged.SemanticTypes = loser.SemanticTypes
		merged.Relationships = loser.Relationships
	}
	return merged
}

// preferEntity reports whether candidate should supply the merged
// record's identity fields over current.
func preferEntity(candidate, current EntityRecord) bool {
	if candidate.Validated != current.Validated {
		return candidate.Validated
	}
	return len(candidate.CanonicalName) > len(current.CanonicalName)
}
