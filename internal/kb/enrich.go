package kb

import (
	"context"
	"strings"
	"time"

	"annopipe/internal/logging"
)

// Cache is the subset of the multi-tier cache the enrichment chain
// consults, keyed by (chainKey, entityType, normalizedText).
type Cache interface {
	GetKB(chainKey, entityType, normalizedText string) (Entry, bool)
	PutKB(chainKey, entityType, normalizedText string, entry Entry)
}

// Enrich resolves one (text, type) pair against a domain's KB chain,
// first-hit wins: the first provider in chain that returns a successful
// lookup is used, subsequent providers in the chain are not consulted
// (spec Open Question: first-hit per source text, not merge-all). Each
// provider lookup is bounded by perLookupTimeout; a provider that times
// out or errors falls through to the next chain entry.
//
// The identity-preservation matching key is (normalizedText, entityType)
// — never an in-memory object identity — so repeated calls for the same
// surface form hit the cache regardless of which EntityRecord carries it.
func Enrich(ctx context.Context, reg *Registry, cache Cache, chainKey string, chain []string, text, entityType string, perLookupTimeout time.Duration) (Entry, bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if cached, ok := cache.GetKB(chainKey, entityType, normalized); ok {
		logging.KBDebug("cache hit for chain=%s type=%s text=%q", chainKey, entityType, normalized)
		return cached, true
	}

	for _, providerName := range chain {
		provider, err := reg.Get(providerName)
		if err != nil {
			logging.KBWarn("KB provider %s not registered, skipping in chain %s", providerName, chainKey)
			continue
		}

		lookupCtx, cancel := context.WithTimeout(ctx, perLookupTimeout)
		entry, err := provider.Lookup(lookupCtx, normalized, entityType)
		cancel()

		if err == nil {
			cache.PutKB(chainKey, entityType, normalized, entry)
			return entry, true
		}

		if ctx.Err() != nil {
			// Caller's request deadline/cancellation, not a provider miss.
			return Entry{}, false
		}

		logging.KBDebug("KB provider %s miss/timeout for %q (type=%s): %v", providerName, normalized, entityType, err)
	}

	return Entry{}, false
}
