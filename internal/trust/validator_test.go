package trust

import (
	"context"
	"testing"

	"annopipe/internal/config"
	"annopipe/internal/mangle"
	"annopipe/internal/pipeline"
)

func newTestValidator(t *testing.T, policy Policy) *Validator {
	t.Helper()
	engine, err := mangle.NewEngine(mangle.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("mangle.NewEngine() error = %v", err)
	}
	v, err := NewValidator(engine, policy)
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return v
}

func TestEvaluateBlockedSourceIsBlocked(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindKBProvider: pipeline.TrustUnverified},
		BlockList:           map[string]bool{"https://evil.example": true},
	}
	v := newTestValidator(t, policy)

	level, allowed := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindKBProvider, ID: "x", SourceURL: "https://evil.example",
	}, true)

	if level != pipeline.TrustBlocked {
		t.Errorf("level = %v, want BLOCKED", level)
	}
	if allowed {
		t.Error("allowed = true, want false for a blocked source")
	}
}

func TestEvaluateAllowListedWithValidChecksumIsTrusted(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindKBProvider: pipeline.TrustUnverified},
		AllowList:           map[string]bool{"https://good.example": true},
	}
	v := newTestValidator(t, policy)

	level, allowed := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindKBProvider, ID: "x", SourceURL: "https://good.example",
	}, true)

	if level != pipeline.TrustTrusted {
		t.Errorf("level = %v, want TRUSTED", level)
	}
	if !allowed {
		t.Error("allowed = false, want true")
	}
}

func TestEvaluateAllowListedWithBadChecksumIsUntrusted(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindKBProvider: pipeline.TrustUnverified},
		AllowList:           map[string]bool{"https://good.example": true},
	}
	v := newTestValidator(t, policy)

	level, allowed := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindKBProvider, ID: "x", SourceURL: "https://good.example",
	}, false)

	if level != pipeline.TrustUntrusted {
		t.Errorf("level = %v, want UNTRUSTED", level)
	}
	if !allowed {
		t.Error("allowed = false, want true (UNTRUSTED still clears UNVERIFIED minimum)")
	}
}

func TestEvaluateNotAllowListedIsUnverified(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindKBProvider: pipeline.TrustUnverified},
	}
	v := newTestValidator(t, policy)

	level, allowed := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindKBProvider, ID: "x", SourceURL: "https://unknown.example",
	}, true)

	if level != pipeline.TrustUnverified {
		t.Errorf("level = %v, want UNVERIFIED", level)
	}
	if !allowed {
		t.Error("allowed = false, want true")
	}
}

func TestEvaluateRejectsBelowMinimum(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindKBProvider: pipeline.TrustTrusted},
	}
	v := newTestValidator(t, policy)

	_, allowed := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindKBProvider, ID: "x", SourceURL: "https://unknown.example",
	}, true)

	if allowed {
		t.Error("allowed = true, want false (UNVERIFIED does not clear a TRUSTED minimum)")
	}
}

func TestEvaluateRequiresHTTPSForKBProviders(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindKBProvider: pipeline.TrustUnverified},
		RequireHTTPSForKB:   true,
		AllowList:           map[string]bool{"http://insecure.example": true},
	}
	v := newTestValidator(t, policy)

	level, allowed := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindKBProvider, ID: "x", SourceURL: "http://insecure.example",
	}, true)

	if level != pipeline.TrustUntrusted {
		t.Errorf("level = %v, want UNTRUSTED (allow-listed but not HTTPS)", level)
	}
	if !allowed {
		t.Error("allowed = false, want true (still clears UNVERIFIED minimum)")
	}
}

func TestEvaluateHTTPSRequirementOnlyAppliesToKB(t *testing.T) {
	policy := Policy{
		MinTrustLevelByKind: map[pipeline.ComponentKind]pipeline.TrustLevel{pipeline.KindNERModel: pipeline.TrustUnverified},
		RequireHTTPSForKB:   true,
		AllowList:           map[string]bool{"http://insecure.example": true},
	}
	v := newTestValidator(t, policy)

	level, _ := v.Evaluate(context.Background(), pipeline.ComponentDescriptor{
		Kind: pipeline.KindNERModel, ID: "x", SourceURL: "http://insecure.example",
	}, true)

	if level != pipeline.TrustTrusted {
		t.Errorf("level = %v, want TRUSTED (HTTPS requirement is KB-only)", level)
	}
}

func TestPolicyFromConfigTranslatesKindsAndLevels(t *testing.T) {
	cfg := config.TrustPolicyConfig{
		MinTrustLevelByKind: map[string]string{"KB_PROVIDER": "TRUSTED"},
		AllowList:           []string{"https://good.example"},
		BlockList:           []string{"https://evil.example"},
	}
	policy := PolicyFromConfig(cfg)

	if policy.MinTrustLevelByKind[pipeline.KindKBProvider] != pipeline.TrustTrusted {
		t.Errorf("min level for KB_PROVIDER = %v, want TRUSTED", policy.MinTrustLevelByKind[pipeline.KindKBProvider])
	}
	if !policy.AllowList["https://good.example"] {
		t.Error("expected https://good.example in AllowList")
	}
	if !policy.BlockList["https://evil.example"] {
		t.Error("expected https://evil.example in BlockList")
	}
}
