// Package trust implements the registration-time trust validator (spec
// §4.6). NewValidator asserts the allow-list/block-list as facts into an
// internal/mangle engine; Evaluate decides each component descriptor from
// the Policy maps and does not query the engine.
package trust

import (
	"context"
	"fmt"
	"strings"

	"annopipe/internal/config"
	"annopipe/internal/logging"
	"annopipe/internal/mangle"
	"annopipe/internal/pipeline"
)

const trustSchema = `
trusted_source(/name, /level) :- trusted_source_fact(/name, /level).
blocked_source(/name) :- blocked_source_fact(/name).
`

// Policy is the evaluated trust policy: minimum required level per kind,
// whether KB sources must be served over HTTPS, and explicit allow/block
// lists by source URL.
type Policy struct {
	MinTrustLevelByKind map[pipeline.ComponentKind]pipeline.TrustLevel
	RequireHTTPSForKB   bool
	AllowList           map[string]bool
	BlockList           map[string]bool
	// ExpectedChecksums maps a source URL to the checksum it must produce
	// to be trusted. A source absent from this map has no checksum
	// requirement at all.
	ExpectedChecksums map[string]string
}

// Validator evaluates a ComponentDescriptor's trust level and decides
// whether it is allowed to register, per spec §4.6's algorithm:
//
//  1. blocked list -> BLOCKED
//  2. allow-list + checksum ok + required scheme -> TRUSTED
//  3. allow-list + checksum mismatch (but required) -> UNTRUSTED
//  4. not in allow-list -> UNVERIFIED
//
// final allowed iff trust_level >= policy.min_trust_level[kind].
type Validator struct {
	engine *mangle.Engine
	policy Policy
}

// PolicyFromConfig translates the YAML-facing TrustPolicyConfig (string
// kinds/levels, so it round-trips cleanly through YAML) into a Policy keyed
// by the typed pipeline.ComponentKind/TrustLevel the validator actually
// compares against.
func PolicyFromConfig(cfg config.TrustPolicyConfig) Policy {
	minByKind := make(map[pipeline.ComponentKind]pipeline.TrustLevel, len(cfg.MinTrustLevelByKind))
	for kind, level := range cfg.MinTrustLevelByKind {
		minByKind[pipeline.ComponentKind(kind)] = pipeline.TrustLevel(level)
	}

	allow := make(map[string]bool, len(cfg.AllowList))
	for _, url := range cfg.AllowList {
		allow[url] = true
	}
	block := make(map[string]bool, len(cfg.BlockList))
	for _, url := range cfg.BlockList {
		block[url] = true
	}

	checksums := make(map[string]string, len(cfg.ExpectedChecksums))
	for url, sum := range cfg.ExpectedChecksums {
		checksums[url] = sum
	}

	return Policy{
		MinTrustLevelByKind: minByKind,
		RequireHTTPSForKB:   cfg.RequireHTTPSForKB,
		AllowList:           allow,
		BlockList:           block,
		ExpectedChecksums:   checksums,
	}
}

// NewValidator wires a Mangle engine (loaded with the allow/block-list
// schema above) to a Policy.
func NewValidator(engine *mangle.Engine, policy Policy) (*Validator, error) {
	if err := engine.LoadSchemaString(trustSchema); err != nil {
		return nil, fmt.Errorf("loading trust schema: %w", err)
	}
	for url := range policy.AllowList {
		if err := engine.AddFact("trusted_source_fact", url, "allowed"); err != nil {
			return nil, fmt.Errorf("asserting allow-list fact for %s: %w", url, err)
		}
	}
	for url := range policy.BlockList {
		if err := engine.AddFact("blocked_source_fact", url); err != nil {
			return nil, fmt.Errorf("asserting block-list fact for %s: %w", url, err)
		}
	}
	return &Validator{engine: engine, policy: policy}, nil
}

// Evaluate assigns a TrustLevel to desc and reports whether it clears the
// policy's minimum for its kind.
func (v *Validator) Evaluate(ctx context.Context, desc pipeline.ComponentDescriptor, checksumOK bool) (pipeline.TrustLevel, bool) {
	level := v.computeLevel(desc, checksumOK)

	min := v.policy.MinTrustLevelByKind[desc.Kind]
	allowed := level.AtLeast(min)

	logging.Audit().TrustDecision(desc.ID, string(level), allowed)
	if !allowed {
		logging.TrustWarn("component %s (%s) trust level %s below policy minimum %s", desc.ID, desc.Kind, level, min)
	}
	return level, allowed
}

func (v *Validator) computeLevel(desc pipeline.ComponentDescriptor, checksumOK bool) pipeline.TrustLevel {
	if v.policy.BlockList[desc.SourceURL] {
		return pipeline.TrustBlocked
	}

	requiredSchemeOK := true
	if v.policy.RequireHTTPSForKB && desc.Kind == pipeline.KindKBProvider {
		requiredSchemeOK = strings.HasPrefix(desc.SourceURL, "https://")
	}

	if !v.policy.AllowList[desc.SourceURL] {
		return pipeline.TrustUnverified
	}

	if checksumOK && requiredSchemeOK {
		return pipeline.TrustTrusted
	}

	return pipeline.TrustUntrusted
}
