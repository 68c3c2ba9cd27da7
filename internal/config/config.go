package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"annopipe/internal/logging"

	"gopkg.in/yaml.v3"
)

// Config holds all annopipe configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Pipeline-wide defaults (the global layer of PipelineConfig.Merge).
	Pipeline PipelineDefaults `yaml:"pipeline"`

	// Per-domain profiles (the domain layer of PipelineConfig.Merge).
	DomainProfiles map[string]DomainProfile `yaml:"domain_profiles" json:"domain_profiles"`

	// DefaultDomain is used when a request's domain has no explicit profile,
	// and for the null/generic domain.
	DefaultDomain DomainProfile `yaml:"default_domain" json:"default_domain"`

	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Cache       CacheConfig       `yaml:"cache"`
	TrustPolicy TrustPolicyConfig `yaml:"trust_policy" json:"trust_policy"`
	Optimizer   OptimizerConfig   `yaml:"optimizer"`
	Logging     LoggingConfig     `yaml:"logging"`
	CoreLimits  CoreLimits        `yaml:"core_limits" json:"core_limits"`
}

// PipelineDefaults holds process-wide knobs that apply regardless of domain:
// the overall request deadline and its per-stage split, and which stages run
// at all.
type PipelineDefaults struct {
	DeadlineMS         int64            `yaml:"deadline_ms" json:"deadline_ms"`
	PerStageFractions  StageFractions   `yaml:"per_stage_fractions" json:"per_stage_fractions"`
	EnabledStages      []string         `yaml:"enabled_stages" json:"enabled_stages"`
	MaxTextBytes       int              `yaml:"max_text_bytes" json:"max_text_bytes"`
	TeardownAllowanceMS int64           `yaml:"teardown_allowance_ms" json:"teardown_allowance_ms"`
}

// StageFractions is the percentage-of-deadline budget for each stage. It must
// sum to 1.0 (callers normalize if it does not).
type StageFractions struct {
	NER            float64 `yaml:"ner" json:"ner"`
	Enrichment     float64 `yaml:"enrichment" json:"enrichment"`
	Patterns       float64 `yaml:"patterns" json:"patterns"`
	PostProcessing float64 `yaml:"post_processing" json:"post_processing"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "annopipe",
		Version: "0.1.0",

		Pipeline: PipelineDefaults{
			DeadlineMS: 30000,
			PerStageFractions: StageFractions{
				NER:            0.50,
				Enrichment:     0.35,
				Patterns:       0.10,
				PostProcessing: 0.05,
			},
			EnabledStages:       []string{"NER", "ENRICHMENT", "PATTERNS", "POST_PROCESSING"},
			MaxTextBytes:        100 * 1024,
			TeardownAllowanceMS: 200,
		},

		DefaultDomain: applyDomainDefaults(DomainProfile{
			DeduplicationEnabled: true,
			MergeOverlapping:     true,
		}),

		DomainProfiles: map[string]DomainProfile{
			"medical": applyDomainDefaults(DomainProfile{
				KBChain:              []string{"umls", "rxnorm", "snomed"},
				DeduplicationEnabled: true,
				MergeOverlapping:     true,
			}),
			"legal": applyDomainDefaults(DomainProfile{
				KBChain:              []string{"usc", "courtlistener", "cfr"},
				DeduplicationEnabled: true,
				MergeOverlapping:     true,
			}),
			"scientific": applyDomainDefaults(DomainProfile{
				KBChain:              []string{"umls", "pubchem"},
				DeduplicationEnabled: true,
				MergeOverlapping:     true,
			}),
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Cache: CacheConfig{
			T1MaxEntries:     10000,
			T1EvictionFrac:   0.10,
			T2Enabled:        false,
			T2DefaultTTL:     "10m",
			T3Enabled:        true,
			T3ManifestPath:   "data/cache/manifest.json",
			T3SyncInterval:   "30s",
			SimilarityThresh: 0.92,
		},

		TrustPolicy: TrustPolicyConfig{
			MinTrustLevelByKind: map[string]string{
				"NER_MODEL":      "UNVERIFIED",
				"KB_PROVIDER":    "VERIFIED",
				"PATTERN_MATCHER": "UNVERIFIED",
			},
			RequireHTTPSForKB: true,
			AllowList:         []string{},
			BlockList:         []string{},
		},

		Optimizer: OptimizerConfig{
			Strategy:             "BALANCED",
			MinSamples:           10,
			PerformanceThreshold: 0.05,
			WindowSize:           1000,
			SignificanceAlpha:    0.05,
		},

		Logging: LoggingConfig{
			Level:     "info",
			Format:    "text",
			File:      "annopipe.log",
			DebugMode: false,
		},

		CoreLimits: CoreLimits{
			MaxConcurrentRequests: 16,
			MaxConcurrentKBCalls:  10,
			MaxConcurrentModels:   8,
		},
	}
}

// Load loads configuration from a YAML file, falling back to defaults (with
// env overrides applied) when the file does not exist.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	logging.BootDebug("loading config from: %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Boot("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		logging.BootError("failed to read config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		logging.BootError("failed to parse config file %s: %v", path, err)
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Boot("config loaded: %d domain profiles", len(cfg.DomainProfiles))
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("ANNOPIPE_GENAI_API_KEY"); key != "" {
		c.Embedding.GenAIAPIKey = key
	}
	if endpoint := os.Getenv("ANNOPIPE_OLLAMA_ENDPOINT"); endpoint != "" {
		c.Embedding.OllamaEndpoint = endpoint
	}
	if v := os.Getenv("ANNOPIPE_DEADLINE_MS"); v != "" {
		if d, err := time.ParseDuration(v + "ms"); err == nil {
			c.Pipeline.DeadlineMS = d.Milliseconds()
		}
	}
	if v := os.Getenv("ANNOPIPE_CACHE_MANIFEST"); v != "" {
		c.Cache.T3ManifestPath = v
	}
}

// GetDomainProfile returns the profile for a domain tag, falling back to the
// default domain profile when the tag is unknown (or empty / generic).
func (c *Config) GetDomainProfile(domain string) DomainProfile {
	if domain == "" {
		return c.DefaultDomain
	}
	if profile, ok := c.DomainProfiles[domain]; ok {
		return profile
	}
	return c.DefaultDomain
}

// SetDomainProfile updates or adds a domain profile.
func (c *Config) SetDomainProfile(domain string, profile DomainProfile) {
	if c.DomainProfiles == nil {
		c.DomainProfiles = make(map[string]DomainProfile)
	}
	c.DomainProfiles[domain] = profile
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	sum := c.Pipeline.PerStageFractions.NER + c.Pipeline.PerStageFractions.Enrichment +
		c.Pipeline.PerStageFractions.Patterns + c.Pipeline.PerStageFractions.PostProcessing
	if sum <= 0 {
		return fmt.Errorf("per_stage_fractions must sum to a positive value, got %f", sum)
	}
	if c.Pipeline.DeadlineMS <= 0 {
		return fmt.Errorf("pipeline.deadline_ms must be positive")
	}
	return nil
}
