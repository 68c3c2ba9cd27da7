package ner

import (
	"context"
	"errors"
	"testing"

	"annopipe/internal/pipelineerrors"
)

type fakeModel struct {
	name  string
	spans []Span
	err   error
}

func (m *fakeModel) Name() string { return m.name }

func (m *fakeModel) Extract(ctx context.Context, text, domain string) ([]Span, error) {
	return m.spans, m.err
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&fakeModel{name: ""}, ModelStats{})
	if !errors.Is(err, pipelineerrors.ErrComponentNameEmpty) {
		t.Fatalf("Register() error = %v, want ErrComponentNameEmpty", err)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	model := &fakeModel{name: "a"}
	if err := r.Register(model, ModelStats{}); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := r.Register(model, ModelStats{}); !errors.Is(err, pipelineerrors.ErrComponentAlreadyRegistered) {
		t.Fatalf("second Register() error = %v, want ErrComponentAlreadyRegistered", err)
	}
}

func TestGetUnknownModel(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get("nope"); !errors.Is(err, pipelineerrors.ErrComponentNotFound) {
		t.Fatalf("Get() error = %v, want ErrComponentNotFound", err)
	}
}

func TestAllReturnsSortedNames(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "zeta"}, ModelStats{})
	r.Register(&fakeModel{name: "alpha"}, ModelStats{})

	got := r.All()
	if len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Fatalf("All() = %v, want [alpha zeta]", got)
	}
}

func TestSelectExcludesBelowMinF1(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "weak"}, ModelStats{F1ByDomain: map[string]float64{"medical": 0.3}})
	r.Register(&fakeModel{name: "strong"}, ModelStats{F1ByDomain: map[string]float64{"medical": 0.9}})

	names, err := r.Select("medical", 0.5, 2000, 1, 5)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(names) != 1 || names[0] != "strong" {
		t.Fatalf("Select() = %v, want [strong]", names)
	}
}

func TestSelectErrorsWhenBelowMinModels(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "only"}, ModelStats{F1ByDomain: map[string]float64{"medical": 0.9}})

	_, err := r.Select("medical", 0.5, 2000, 2, 5)
	if !errors.Is(err, pipelineerrors.ErrNoModelsAvailable) {
		t.Fatalf("Select() error = %v, want ErrNoModelsAvailable", err)
	}
}

func TestSelectTruncatesToMaxModels(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "a"}, ModelStats{F1ByDomain: map[string]float64{"d": 0.9}, ProviderWeight: 0.9})
	r.Register(&fakeModel{name: "b"}, ModelStats{F1ByDomain: map[string]float64{"d": 0.8}, ProviderWeight: 0.8})
	r.Register(&fakeModel{name: "c"}, ModelStats{F1ByDomain: map[string]float64{"d": 0.7}, ProviderWeight: 0.7})

	names, err := r.Select("d", 0.1, 2000, 1, 2)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("len(names) = %d, want 2", len(names))
	}
	if names[0] != "a" || names[1] != "b" {
		t.Fatalf("Select() = %v, want [a b] (highest scores first)", names)
	}
}

func TestScoreWeightsComponents(t *testing.T) {
	s := ModelStats{
		F1ByDomain:       map[string]float64{"d": 1.0},
		AvgLatencyMS:     0,
		ProviderWeight:   1.0,
		CoverageByDomain: map[string]float64{"d": 1.0},
	}
	got := s.Score("d", 1000)
	want := 0.40*1.0 + 0.30*1.0 + 0.20*1.0 + 0.10*1.0
	if got != want {
		t.Errorf("Score() = %v, want %v", got, want)
	}
}

func TestRunFusesByMajorityVote(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "m1", spans: []Span{{Text: "aspirin", Type: "DRUG", Start: 0, End: 7, Confidence: 0.8}}}, ModelStats{})
	r.Register(&fakeModel{name: "m2", spans: []Span{{Text: "aspirin", Type: "DRUG", Start: 0, End: 7, Confidence: 0.9}}}, ModelStats{})
	r.Register(&fakeModel{name: "m3", spans: []Span{{Text: "aspirin", Type: "CHEMICAL", Start: 0, End: 7, Confidence: 0.95}}}, ModelStats{})

	spans, err := r.Run(context.Background(), []string{"m1", "m2", "m3"}, "aspirin", "medical", 1, 0.1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	if spans[0].Type != "DRUG" {
		t.Errorf("Type = %q, want %q (2 votes beats 1)", spans[0].Type, "DRUG")
	}
}

func TestRunFusedConfidenceIsMeanOfWinningVotesPlusBoost(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "a", spans: []Span{{Text: "Aspirin", Type: "DRUG", Start: 0, End: 7, Confidence: 0.8}}}, ModelStats{})
	r.Register(&fakeModel{name: "b", spans: []Span{{Text: "Aspirin", Type: "CHEMICAL", Start: 0, End: 7, Confidence: 0.7}}}, ModelStats{})

	spans, err := r.Run(context.Background(), []string{"a", "b"}, "Aspirin", "medical", 1, 0.1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	// Winning type DRUG has a single vote of 0.8 (higher summed confidence
	// than CHEMICAL's single 0.7 vote). mean(0.8) + 0.10*1/2 = 0.85.
	want := 0.8 + 0.10*1.0/2.0
	if diff := spans[0].Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v", spans[0].Confidence, want)
	}
}

func TestRunFusedConfidenceUsesMeanNotMaxAcrossAgreeingVotes(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "a", spans: []Span{{Text: "x", Type: "MISC", Start: 0, End: 1, Confidence: 0.6}}}, ModelStats{})
	r.Register(&fakeModel{name: "b", spans: []Span{{Text: "x", Type: "MISC", Start: 0, End: 1, Confidence: 0.95}}}, ModelStats{})

	spans, err := r.Run(context.Background(), []string{"a", "b"}, "x", "medical", 1, 0.1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1", len(spans))
	}
	// mean(0.6, 0.95) + 0.10*2/2 = 0.775 + 0.10 = 0.875, not max(0.95)+0.10=1.0.
	want := 0.775 + 0.10
	if diff := spans[0].Confidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Confidence = %v, want %v (mean of agreeing votes, not the max single vote)", spans[0].Confidence, want)
	}
}

func TestSelectExcludesAboveMaxLatency(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "slow"}, ModelStats{F1ByDomain: map[string]float64{"d": 0.9}, AvgLatencyMS: 5000})
	r.Register(&fakeModel{name: "fast"}, ModelStats{F1ByDomain: map[string]float64{"d": 0.8}, AvgLatencyMS: 100})

	names, err := r.Select("d", 0.1, 1000, 1, 5)
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if len(names) != 1 || names[0] != "fast" {
		t.Fatalf("Select() = %v, want [fast] (the over-budget model must be excluded, not just penalized)", names)
	}
}

func TestRunDropsSpansBelowQuorum(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "m1", spans: []Span{{Text: "x", Type: "MISC", Start: 0, End: 1, Confidence: 0.9}}}, ModelStats{})

	spans, err := r.Run(context.Background(), []string{"m1"}, "x", "medical", 2, 0.1)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(spans) != 0 {
		t.Fatalf("len(spans) = %d, want 0 (single vote below quorum of 2)", len(spans))
	}
}

func TestRunIgnoresOneModelError(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeModel{name: "bad", err: errors.New("boom")}, ModelStats{})
	r.Register(&fakeModel{name: "good", spans: []Span{{Text: "x", Type: "MISC", Start: 0, End: 1, Confidence: 0.9}}}, ModelStats{})

	spans, err := r.Run(context.Background(), []string{"bad", "good"}, "x", "medical", 1, 0.1)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil (one bad model should not fail the ensemble)", err)
	}
	if len(spans) != 1 {
		t.Fatalf("len(spans) = %d, want 1 from the surviving model", len(spans))
	}
}
