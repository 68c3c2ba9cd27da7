package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"google.golang.org/genai"

	"annopipe/internal/cache"
	"annopipe/internal/config"
	"annopipe/internal/embedding"
	"annopipe/internal/hotswap"
	"annopipe/internal/kb"
	"annopipe/internal/logging"
	"annopipe/internal/mangle"
	"annopipe/internal/ner"
	"annopipe/internal/optimizer"
	"annopipe/internal/pattern"
	"annopipe/internal/pipeline"
	"annopipe/internal/trust"
)

// app bundles every long-lived component the CLI commands share.
type app struct {
	cfg          *config.Config
	orchestrator *pipeline.Orchestrator
	hotswap      *hotswap.Manager
	validator    *trust.Validator
	optimizer    *optimizer.Optimizer
	cache        *cache.Cache
}

// buildApp loads configuration and wires every registry, exactly the way
// main.go's PersistentPreRunE brings up logging before any command runs.
func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("starting policy engine: %w", err)
	}

	validator, err := trust.NewValidator(engine, trust.PolicyFromConfig(cfg.TrustPolicy))
	if err != nil {
		return nil, fmt.Errorf("starting trust validator: %w", err)
	}

	swap := hotswap.NewManager()
	ctx := context.Background()

	nerReg := ner.NewRegistry()
	if err := wireNERModels(ctx, cfg, swap, validator, nerReg); err != nil {
		return nil, err
	}

	kbReg := kb.NewRegistry()
	if err := wireKBProviders(ctx, cfg, swap, validator, kbReg); err != nil {
		return nil, err
	}

	patternReg := pattern.NewRegistry()
	if err := wireBuiltinPatterns(ctx, swap, validator, patternReg); err != nil {
		return nil, err
	}

	cacheInstance, err := wireCache(cfg)
	if err != nil {
		return nil, err
	}

	opt := optimizer.New(
		cfg.Optimizer.WindowSize,
		optimizer.Strategy(cfg.Optimizer.Strategy),
		cfg.Optimizer.MinSamples,
		cfg.Optimizer.PerformanceThreshold,
		cfg.Optimizer.SignificanceAlpha,
	)

	orch := pipeline.NewOrchestrator(nerReg, kbReg, cacheInstance, patternReg)
	orch.MaxConcurrentKBCalls = cfg.CoreLimits.MaxConcurrentKBCalls

	return &app{
		cfg:          cfg,
		orchestrator: orch,
		hotswap:      swap,
		validator:    validator,
		optimizer:    opt,
		cache:        cacheInstance,
	}, nil
}

// alwaysHealthy is the hot-swap health check for components with no
// cheap self-test available yet (the registry's own construction already
// failed loudly if the component couldn't come up).
func alwaysHealthy(instance any) (bool, error) { return true, nil }

// registerSlot hashes the component's identifying bytes, runs the
// descriptor through the trust validator, and only then hands it to the
// hot-swap manager, so an unregistered, blocked, or checksum-mismatched
// source never reaches READY regardless of what the manager's own health
// check says. componentBytes is whatever the component's source actually
// is (a KB database file's contents, a canonical encoding of an NER
// model's identity, a pattern set's serialized rules) -- the same bytes
// an attacker would have to tamper with to swap in a different component
// under an allow-listed URL.
func registerSlot(ctx context.Context, swap *hotswap.Manager, validator *trust.Validator, desc pipeline.ComponentDescriptor, instance any, componentBytes []byte) error {
	desc.Checksum = trust.ComputeChecksum(componentBytes)
	checksumOK := validator.ChecksumOK(desc.SourceURL, desc.Checksum)

	level, allowed := validator.Evaluate(ctx, desc, checksumOK)
	desc.TrustLevel = level
	if !allowed {
		return fmt.Errorf("component %s/%s rejected by trust policy at level %s", desc.Kind, desc.ID, level)
	}
	return swap.Register(ctx, desc, instance, alwaysHealthy)
}

// wireNERModels registers the GenAI-backed extractor when an API key is
// configured. Without one the ensemble simply starts empty; selection
// fails loudly at request time rather than here.
func wireNERModels(ctx context.Context, cfg *config.Config, swap *hotswap.Manager, validator *trust.Validator, reg *ner.Registry) error {
	if cfg.Embedding.GenAIAPIKey == "" {
		logging.OrchestratorWarn("no GenAI API key configured, NER ensemble starts with zero models")
		return nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.Embedding.GenAIAPIKey})
	if err != nil {
		return fmt.Errorf("creating genai client for NER: %w", err)
	}

	const modelName = "genai-default"
	model := ner.NewGenAIModel(modelName, client, "gemini-2.0-flash")
	stats := ner.ModelStats{
		Name:             modelName,
		F1ByDomain:       map[string]float64{},
		AvgLatencyMS:     800,
		ProviderWeight:   0.8,
		CoverageByDomain: map[string]float64{},
	}
	if err := reg.Register(model, stats); err != nil {
		return fmt.Errorf("registering NER model %s: %w", modelName, err)
	}

	desc := pipeline.ComponentDescriptor{
		Kind:      pipeline.KindNERModel,
		ID:        modelName,
		Version:   "1",
		SourceURL: "https://generativelanguage.googleapis.com",
		Domains:   []string{"medical", "legal", "scientific"},
	}
	// A remote model has no local file to hash; its identity bytes are the
	// canonical encoding of what it claims to be.
	identity := []byte(fmt.Sprintf("%s:%s:%s", desc.ID, desc.Version, desc.SourceURL))
	return registerSlot(ctx, swap, validator, desc, model, identity)
}

// wireKBProviders opens one SQLite-backed provider per distinct KB chain
// entry referenced by any domain profile, storing each database under
// data/kb/<name>.db relative to the working directory.
func wireKBProviders(ctx context.Context, cfg *config.Config, swap *hotswap.Manager, validator *trust.Validator, reg *kb.Registry) error {
	names := collectKBChainNames(cfg)
	if len(names) == 0 {
		names = []string{"default"}
	}

	dir := filepath.Join("data", "kb")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating KB data dir: %w", err)
	}

	for _, name := range names {
		path := filepath.Join(dir, name+".db")
		provider, err := kb.NewSQLiteProvider(name, path)
		if err != nil {
			return fmt.Errorf("opening KB provider %s: %w", name, err)
		}
		if err := reg.Register(provider); err != nil {
			return fmt.Errorf("registering KB provider %s: %w", name, err)
		}

		desc := pipeline.ComponentDescriptor{
			Kind:      pipeline.KindKBProvider,
			ID:        name,
			Version:   "1",
			SourceURL: "file://" + path,
			Domains:   []string{"*"},
		}
		dbBytes, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading KB database %s for checksum: %w", path, err)
		}
		if err := registerSlot(ctx, swap, validator, desc, provider, dbBytes); err != nil {
			return err
		}
	}
	return nil
}

func collectKBChainNames(cfg *config.Config) []string {
	seen := map[string]bool{}
	add := func(chain []string) {
		for _, c := range chain {
			seen[c] = true
		}
	}
	add(cfg.DefaultDomain.KBChain)
	for _, profile := range cfg.DomainProfiles {
		add(profile.KBChain)
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// wireBuiltinPatterns registers a small starter set of structured-text
// patterns, the same way the reference ships default tool/model entries
// alongside the pluggable registry.
func wireBuiltinPatterns(ctx context.Context, swap *hotswap.Manager, validator *trust.Validator, reg *pattern.Registry) error {
	builtins := []*pattern.Pattern{
		{
			Name:           "email",
			Type:           "EMAIL",
			Regex:          regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
			BaseConfidence: 0.9,
		},
		{
			Name:           "url",
			Type:           "URL",
			Regex:          regexp.MustCompile(`https?://[^\s]+`),
			BaseConfidence: 0.9,
		},
		{
			Name:            "iso_date",
			Type:            "DATE",
			Regex:           regexp.MustCompile(`\d{4}-\d{2}-\d{2}`),
			BaseConfidence:  0.7,
			SupportingWords: []string{"on", "dated", "effective"},
		},
	}
	var identity strings.Builder
	for _, p := range builtins {
		if err := reg.Register(p); err != nil {
			return fmt.Errorf("registering pattern %s: %w", p.Name, err)
		}
		fmt.Fprintf(&identity, "%s|%s|%s|%.4f|%v\n", p.Name, p.Type, p.Regex.String(), p.BaseConfidence, p.SupportingWords)
	}

	desc := pipeline.ComponentDescriptor{
		Kind:      pipeline.KindPatternMatcher,
		ID:        "builtin",
		Version:   "1",
		SourceURL: "builtin://patterns",
		Domains:   []string{"*"},
	}
	return registerSlot(ctx, swap, validator, desc, reg, []byte(identity.String()))
}

// wireCache builds the multi-tier cache from config, constructing a T2
// embedding engine only when that tier is enabled (it is the only tier
// with an external dependency worth paying for lazily).
func wireCache(cfg *config.Config) (*cache.Cache, error) {
	var opts []cache.Option

	if cfg.Cache.T2Enabled {
		engine, err := embedding.NewEngine(embedding.Config{
			Provider:       cfg.Embedding.Provider,
			OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
			OllamaModel:    cfg.Embedding.OllamaModel,
			GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
			GenAIModel:     cfg.Embedding.GenAIModel,
			TaskType:       cfg.Embedding.TaskType,
		})
		if err != nil {
			return nil, fmt.Errorf("starting T2 embedding engine: %w", err)
		}
		opts = append(opts, cache.WithT2(engine, cfg.Cache.SimilarityThresh))
	}

	if cfg.Cache.T3Enabled {
		opts = append(opts, cache.WithT3(cfg.Cache.T3ManifestPath))
	}

	return cache.New(cfg.Cache.T1MaxEntries, cfg.Cache.T1EvictionFrac, opts...), nil
}
