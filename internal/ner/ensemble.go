package ner

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"annopipe/internal/logging"
)

// spanKey groups votes by exact span (spec §4.2: "group by exact span").
type spanKey struct {
	start int
	end   int
}

// vote is one model's opinion for a given span.
type vote struct {
	modelName  string
	text       string
	entityType string
	confidence float64
}

// Run extracts spans from every named model concurrently (one goroutine per
// entry of modelNames, with no further concurrency limit) and fuses them by
// majority vote per exact span.
//
// Fusion rules (spec §4.2):
//   - group votes by exact (start, end)
//   - mode vote on Type; ties broken by highest summed confidence, then
//     lexicographic Type
//   - agreement_boost = 0.10 * votes_for_winning_type / ensemble_size, capped at 1.0
//   - quorum: spans with fewer than minVotes total votes are dropped
//   - final confidence below minConfidence is dropped
func (r *Registry) Run(ctx context.Context, modelNames []string, text, domain string, minVotes int, minConfidence float64) ([]Span, error) {
	ensembleSize := len(modelNames)

	votesMu := struct {
		m map[spanKey][]vote
	}{m: make(map[spanKey][]vote)}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	errs := make([]error, 0)

	for _, name := range modelNames {
		name := name
		g.Go(func() error {
			model, err := r.Get(name)
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil // one bad model doesn't cancel the ensemble
			}
			spans, err := model.Extract(gctx, text, domain)
			if err != nil {
				logging.NERWarn("model %s extraction failed: %v", name, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			for _, s := range spans {
				key := spanKey{start: s.Start, end: s.End}
				votesMu.m[key] = append(votesMu.m[key], vote{
					modelName:  name,
					text:       s.Text,
					entityType: s.Type,
					confidence: s.Confidence,
				})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Span, 0, len(votesMu.m))
	for key, votes := range votesMu.m {
		if len(votes) < minVotes {
			continue
		}

		counts := make(map[string]int)
		sumConf := make(map[string]float64)
		bestConf := make(map[string]float64) // highest single vote, used to pick the reported text
		bestText := make(map[string]string)
		for _, v := range votes {
			counts[v.entityType]++
			sumConf[v.entityType] += v.confidence
			if v.confidence > bestConf[v.entityType] {
				bestConf[v.entityType] = v.confidence
				bestText[v.entityType] = v.text
			}
		}

		winningType := ""
		winningCount := -1
		for t, c := range counts {
			if c > winningCount || (c == winningCount && (sumConf[t] > sumConf[winningType] ||
				(sumConf[t] == sumConf[winningType] && t < winningType))) {
				winningType = t
				winningCount = c
			}
		}

		boost := 0.10 * float64(winningCount) / float64(ensembleSize)
		if boost > 1.0 {
			boost = 1.0
		}
		confidence := sumConf[winningType]/float64(winningCount) + boost
		if confidence > 1.0 {
			confidence = 1.0
		}
		if confidence < minConfidence {
			continue
		}

		results = append(results, Span{
			Text:       bestText[winningType],
			Type:       winningType,
			Start:      key.start,
			End:        key.end,
			Confidence: confidence,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Start != results[j].Start {
			return results[i].Start < results[j].Start
		}
		return results[i].End > results[j].End
	})

	return results, nil
}
