package config

// CacheConfig configures the multi-tier annotation cache (spec §4.8):
// T1 in-process, T2 vector-similarity near-hit, T3 persistent manifest.
type CacheConfig struct {
	// T1: bounded in-process map.
	T1MaxEntries   int     `yaml:"t1_max_entries" json:"t1_max_entries"`
	T1EvictionFrac float64 `yaml:"t1_eviction_frac" json:"t1_eviction_frac"` // fraction evicted (LRU) when over max_entries

	// T2: optional remote/vector-similarity tier.
	T2Enabled    bool   `yaml:"t2_enabled" json:"t2_enabled"`
	T2DefaultTTL string `yaml:"t2_default_ttl" json:"t2_default_ttl"` // duration string; no code outside this package reads it

	// T3: optional persistent on-disk tier, backed by a JSON manifest.
	T3Enabled      bool   `yaml:"t3_enabled" json:"t3_enabled"`
	T3ManifestPath string `yaml:"t3_manifest_path" json:"t3_manifest_path"`
	T3SyncInterval string `yaml:"t3_sync_interval" json:"t3_sync_interval"`

	// SimilarityThresh is the minimum cosine similarity for a T2 near-hit.
	SimilarityThresh float64 `yaml:"similarity_thresh" json:"similarity_thresh"`
}
