package pipeline

import "annopipe/internal/config"

// FromConfig builds the global-layer PipelineConfig for a domain tag from a
// loaded config.Config, ready to be Merged with a per-request override. This
// is the only place the orchestrator package depends on the YAML config
// shape; DomainSelection/StageFractions exist independently so orchestrator
// tests never need a config.Config fixture.
func FromConfig(cfg *config.Config, domain string) PipelineConfig {
	profile := cfg.GetDomainProfile(domain)

	return PipelineConfig{
		Domain:     domain,
		DeadlineMS: cfg.Pipeline.DeadlineMS,
		StageFractions: StageFractions{
			NER:            cfg.Pipeline.PerStageFractions.NER,
			Enrichment:     cfg.Pipeline.PerStageFractions.Enrichment,
			Patterns:       cfg.Pipeline.PerStageFractions.Patterns,
			PostProcessing: cfg.Pipeline.PerStageFractions.PostProcessing,
		},
		EnabledStages: cfg.Pipeline.EnabledStages,
		MaxTextBytes:  cfg.Pipeline.MaxTextBytes,
		Selection: DomainSelection{
			MinF1:              profile.MinF1,
			MaxLatencyMS:       profile.MaxLatencyMS,
			MinModels:          profile.MinModels,
			MaxModels:          profile.MaxModels,
			NERMinConfidence:   profile.NERMinConfidence,
			EnsembleMode:       profile.EnsembleMode,
			MinModelsForQuorum: profile.MinModelsForQuorum,

			KBChain:                    profile.KBChain,
			MinConfidenceForEnrichment: profile.MinConfidenceForEnrichment,
			PerLookupTimeoutMS:         profile.PerLookupTimeoutMS,
			MaxConcurrentLookups:       profile.MaxConcurrentLookups,

			PatternMinConfidence: profile.PatternMinConfidence,
			AutoDetectDomain:     profile.AutoDetectDomain,

			DeduplicationEnabled: profile.DeduplicationEnabled,
			MergeOverlapping:     profile.MergeOverlapping,
		},
	}
}
