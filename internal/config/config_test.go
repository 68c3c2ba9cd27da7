package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateRejectsZeroStageFractions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.PerStageFractions = StageFractions{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for all-zero stage fractions")
	}
}

func TestValidateRejectsNonPositiveDeadline(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pipeline.DeadlineMS = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for zero deadline")
	}
}

func TestGetDomainProfileFallsBackToDefault(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.GetDomainProfile("nonexistent")
	if got.MinF1 != cfg.DefaultDomain.MinF1 {
		t.Errorf("GetDomainProfile(unknown) = %+v, want DefaultDomain", got)
	}
	if got := cfg.GetDomainProfile(""); got.MinF1 != cfg.DefaultDomain.MinF1 {
		t.Errorf("GetDomainProfile(\"\") = %+v, want DefaultDomain", got)
	}
}

func TestGetDomainProfileReturnsNamedProfile(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.GetDomainProfile("medical")
	if len(got.KBChain) == 0 || got.KBChain[0] != "umls" {
		t.Errorf("GetDomainProfile(medical).KBChain = %v, want to start with umls", got.KBChain)
	}
}

func TestSetDomainProfileAddsNewEntry(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetDomainProfile("finance", DomainProfile{MinF1: 0.8})
	got := cfg.GetDomainProfile("finance")
	if got.MinF1 != 0.8 {
		t.Errorf("GetDomainProfile(finance).MinF1 = %v, want 0.8", got.MinF1)
	}
}

func TestApplyDomainDefaultsFillsZeroValues(t *testing.T) {
	p := applyDomainDefaults(DomainProfile{})
	if p.MinF1 != 0.6 {
		t.Errorf("MinF1 = %v, want 0.6", p.MinF1)
	}
	if p.MaxModels != 3 {
		t.Errorf("MaxModels = %v, want 3", p.MaxModels)
	}
	if len(p.KBChain) != 1 || p.KBChain[0] != "default" {
		t.Errorf("KBChain = %v, want [default]", p.KBChain)
	}
}

func TestApplyDomainDefaultsPreservesExplicitValues(t *testing.T) {
	p := applyDomainDefaults(DomainProfile{MinF1: 0.95, KBChain: []string{"custom"}})
	if p.MinF1 != 0.95 {
		t.Errorf("MinF1 = %v, want 0.95 (explicit value should not be overwritten)", p.MinF1)
	}
	if len(p.KBChain) != 1 || p.KBChain[0] != "custom" {
		t.Errorf("KBChain = %v, want [custom]", p.KBChain)
	}
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "annopipe" {
		t.Errorf("Name = %q, want default %q", cfg.Name, "annopipe")
	}
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
name: custom-pipeline
pipeline:
  deadline_ms: 5000
  per_stage_fractions:
    ner: 0.6
    enrichment: 0.3
    patterns: 0.05
    post_processing: 0.05
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("writing fixture config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Name != "custom-pipeline" {
		t.Errorf("Name = %q, want %q", cfg.Name, "custom-pipeline")
	}
	if cfg.Pipeline.DeadlineMS != 5000 {
		t.Errorf("DeadlineMS = %d, want 5000", cfg.Pipeline.DeadlineMS)
	}
}

func TestSaveAndReloadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Name = "roundtrip-test"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if reloaded.Name != "roundtrip-test" {
		t.Errorf("Name = %q, want %q", reloaded.Name, "roundtrip-test")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("ANNOPIPE_GENAI_API_KEY", "test-key-123")
	t.Setenv("ANNOPIPE_CACHE_MANIFEST", "/tmp/custom-manifest.json")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Embedding.GenAIAPIKey != "test-key-123" {
		t.Errorf("GenAIAPIKey = %q, want %q", cfg.Embedding.GenAIAPIKey, "test-key-123")
	}
	if cfg.Cache.T3ManifestPath != "/tmp/custom-manifest.json" {
		t.Errorf("T3ManifestPath = %q, want %q", cfg.Cache.T3ManifestPath, "/tmp/custom-manifest.json")
	}
}
