// Package cache implements the multi-tier annotation cache (spec §4.8):
// a bounded in-process T1 map, an optional embedding-similarity T2 near-hit
// tier, and an optional persistent JSON-manifest T3 tier. Modeled on the
// reference's FileCache (internal/world/cache.go), generalized from a
// single file-hash manifest to three independently-enableable tiers keyed
// by the same (chainKey, entityType, normalizedText) identity the KB
// enrichment chain uses.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"annopipe/internal/embedding"
	"annopipe/internal/kb"
	"annopipe/internal/logging"
	"annopipe/internal/pipelineerrors"
)

// entryKey is the cache's identity key: never an object identity, always
// the (chain, type, normalized-text) triple the KB chain looks up by.
type entryKey struct {
	ChainKey       string
	EntityType     string
	NormalizedText string
}

func (k entryKey) manifestKey() string {
	return k.ChainKey + "\x1f" + k.EntityType + "\x1f" + k.NormalizedText
}

// t1Record is one T1 entry plus its *list.Element for O(1) LRU touch/evict.
type t1Record struct {
	key   entryKey
	entry kb.Entry
	elem  *list.Element
}

// Cache is the multi-tier annotation cache. T1 is always active; T2 and T3
// are enabled independently via their constructor options.
type Cache struct {
	mu sync.Mutex

	t1Max          int
	t1EvictionFrac float64
	t1Records      map[entryKey]*t1Record
	t1LRU          *list.List // front = most recently used

	t2Enabled    bool
	t2Engine     embedding.EmbeddingEngine
	t2Threshold  float64
	t2Vectors    map[entryKey][]float32

	t3Enabled      bool
	t3ManifestPath string
	t3Dirty        bool
}

// Option configures an optional cache tier.
type Option func(*Cache)

// WithT2 enables the embedding-similarity near-hit tier: a lookup that
// misses T1 exactly is retried against every T2 vector for the same
// (chainKey, entityType) and accepted if cosine similarity clears
// threshold.
func WithT2(engine embedding.EmbeddingEngine, threshold float64) Option {
	return func(c *Cache) {
		c.t2Enabled = true
		c.t2Engine = engine
		c.t2Threshold = threshold
		c.t2Vectors = make(map[entryKey][]float32)
	}
}

// WithT3 enables the persistent JSON-manifest tier, loaded eagerly from
// manifestPath (if it exists) and flushed on Save.
func WithT3(manifestPath string) Option {
	return func(c *Cache) {
		c.t3Enabled = true
		c.t3ManifestPath = manifestPath
	}
}

// New creates a Cache with the given T1 bound and eviction fraction.
func New(t1Max int, t1EvictionFrac float64, opts ...Option) *Cache {
	if t1Max <= 0 {
		t1Max = 10000
	}
	if t1EvictionFrac <= 0 || t1EvictionFrac > 1 {
		t1EvictionFrac = 0.10
	}
	c := &Cache{
		t1Max:          t1Max,
		t1EvictionFrac: t1EvictionFrac,
		t1Records:      make(map[entryKey]*t1Record),
		t1LRU:          list.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.t3Enabled {
		c.loadManifest()
	}
	return c
}

// manifestEntry is the on-disk, strictly non-executable (JSON) shape of
// one T3 record. Only these whitelisted fields are ever decoded; any
// other shape found in the manifest file is refused, not panicked on.
type manifestEntry struct {
	ChainKey       string   `json:"chain_key"`
	EntityType     string   `json:"entity_type"`
	NormalizedText string   `json:"normalized_text"`
	KBID           string   `json:"kb_id"`
	KBEntityID     string   `json:"kb_entity_id"`
	CanonicalName  string   `json:"canonical_name"`
	Definition     string   `json:"definition"`
	SemanticTypes  []string            `json:"semantic_types"`
	Relationships  map[string][]string `json:"relationships"`
}

func (c *Cache) loadManifest() {
	data, err := os.ReadFile(c.t3ManifestPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.CacheWarn("T3 manifest unreadable, starting empty: %v", err)
		}
		return
	}

	var entries []manifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		logging.CacheWarn("T3 manifest corrupted, starting empty: %v", err)
		return
	}

	skipped := 0
	for _, me := range entries {
		if err := ValidateManifestEntry(me); err != nil {
			skipped++
			continue
		}
		k := entryKey{ChainKey: me.ChainKey, EntityType: me.EntityType, NormalizedText: me.NormalizedText}
		c.t1Put(k, kb.Entry{
			KBID:          me.KBID,
			KBEntityID:    me.KBEntityID,
			CanonicalName: me.CanonicalName,
			Definition:    me.Definition,
			SemanticTypes: me.SemanticTypes,
			Relationships: me.Relationships,
		})
	}
	if skipped > 0 {
		logging.CacheWarn("T3 manifest: skipped %d corrupted entries", skipped)
	}
	logging.Cache("T3 manifest loaded: %d entries from %s", len(entries)-skipped, c.t3ManifestPath)
}

// Save flushes the current T1 contents to the T3 manifest, if enabled and
// dirty. No-op otherwise.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.t3Enabled || !c.t3Dirty {
		return nil
	}

	entries := make([]manifestEntry, 0, len(c.t1Records))
	for k, rec := range c.t1Records {
		entries = append(entries, manifestEntry{
			ChainKey:       k.ChainKey,
			EntityType:     k.EntityType,
			NormalizedText: k.NormalizedText,
			KBID:           rec.entry.KBID,
			KBEntityID:     rec.entry.KBEntityID,
			CanonicalName:  rec.entry.CanonicalName,
			Definition:     rec.entry.Definition,
			SemanticTypes:  rec.entry.SemanticTypes,
			Relationships:  rec.entry.Relationships,
		})
	}

	if err := os.MkdirAll(filepath.Dir(c.t3ManifestPath), 0755); err != nil {
		return fmt.Errorf("creating manifest dir: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling T3 manifest: %w", err)
	}

	if err := os.WriteFile(c.t3ManifestPath, data, 0644); err != nil {
		return fmt.Errorf("writing T3 manifest: %w", err)
	}

	c.t3Dirty = false
	logging.Cache("T3 manifest saved: %d entries", len(entries))
	return nil
}

// GetKB implements kb.Cache: exact T1 hit, falling back to a T2
// near-similarity hit when enabled. Concurrent misses are not
// deduplicated; the enrichment chain's own per-lookup timeout bounds the
// cost of a duplicate upstream call.
func (c *Cache) GetKB(chainKey, entityType, normalizedText string) (kb.Entry, bool) {
	k := entryKey{ChainKey: chainKey, EntityType: entityType, NormalizedText: normalizedText}

	c.mu.Lock()
	if rec, ok := c.t1Records[k]; ok {
		c.t1LRU.MoveToFront(rec.elem)
		entry := rec.entry
		c.mu.Unlock()
		logging.Audit().CacheLookup(normalizedText, "t1", true)
		return entry, true
	}
	c.mu.Unlock()

	if c.t2Enabled {
		if entry, ok := c.t2Lookup(k); ok {
			logging.Audit().CacheLookup(normalizedText, "t2", true)
			return entry, true
		}
	}

	logging.Audit().CacheLookup(normalizedText, "t1", false)
	return kb.Entry{}, false
}

// t2Lookup scans vectors recorded for the same (chainKey, entityType) and
// returns the best near-hit clearing the similarity threshold.
func (c *Cache) t2Lookup(target entryKey) (kb.Entry, bool) {
	vec, err := c.t2Engine.Embed(context.Background(), target.NormalizedText)
	if err != nil {
		logging.CacheWarn("T2 embed failed for %q: %v", target.NormalizedText, err)
		return kb.Entry{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var bestKey entryKey
	bestSim := -1.0
	found := false
	for k, candidateVec := range c.t2Vectors {
		if k.ChainKey != target.ChainKey || k.EntityType != target.EntityType {
			continue
		}
		sim, err := embedding.CosineSimilarity(vec, candidateVec)
		if err != nil {
			continue
		}
		if sim >= c.t2Threshold && sim > bestSim {
			bestSim = sim
			bestKey = k
			found = true
		}
	}
	if !found {
		return kb.Entry{}, false
	}
	rec, ok := c.t1Records[bestKey]
	if !ok {
		return kb.Entry{}, false
	}
	c.t1LRU.MoveToFront(rec.elem)
	return rec.entry, true
}

// PutKB implements kb.Cache: inserts into T1 (evicting LRU entries if over
// capacity), records a T2 vector if enabled, and marks T3 dirty if enabled.
func (c *Cache) PutKB(chainKey, entityType, normalizedText string, entry kb.Entry) {
	k := entryKey{ChainKey: chainKey, EntityType: entityType, NormalizedText: normalizedText}

	c.mu.Lock()
	c.t1Put(k, entry)
	c.mu.Unlock()

	if c.t2Enabled {
		vec, err := c.t2Engine.Embed(context.Background(), normalizedText)
		if err == nil {
			c.mu.Lock()
			c.t2Vectors[k] = vec
			c.mu.Unlock()
		}
	}
}

// t1Put inserts/refreshes a T1 entry. Caller holds c.mu.
func (c *Cache) t1Put(k entryKey, entry kb.Entry) {
	if rec, ok := c.t1Records[k]; ok {
		rec.entry = entry
		c.t1LRU.MoveToFront(rec.elem)
		if c.t3Enabled {
			c.t3Dirty = true
		}
		return
	}

	elem := c.t1LRU.PushFront(k)
	c.t1Records[k] = &t1Record{key: k, entry: entry, elem: elem}
	if c.t3Enabled {
		c.t3Dirty = true
	}

	if len(c.t1Records) > c.t1Max {
		c.evictLocked()
	}
}

// evictLocked removes the least-recently-used t1EvictionFrac of entries.
// Caller holds c.mu.
func (c *Cache) evictLocked() {
	n := int(float64(c.t1Max) * c.t1EvictionFrac)
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		back := c.t1LRU.Back()
		if back == nil {
			return
		}
		k := back.Value.(entryKey)
		c.t1LRU.Remove(back)
		delete(c.t1Records, k)
		delete(c.t2Vectors, k)
	}
	logging.CacheDebug("T1 evicted %d entries (over max_entries=%d)", n, c.t1Max)
}

// Len returns the current number of T1 entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.t1Records)
}

// ValidateManifestEntry refuses a decoded manifest entry that doesn't
// match the whitelisted shape above, surfacing ErrCacheCorrupted rather
// than silently accepting arbitrary decoded data.
func ValidateManifestEntry(me manifestEntry) error {
	if me.NormalizedText == "" || me.EntityType == "" {
		return pipelineerrors.ErrCacheCorrupted
	}
	return nil
}
