package optimizer

import (
	"testing"

	"annopipe/internal/pipeline"
)

func sample(id string, latencyMS int64, accuracy float64) pipeline.PerformanceSample {
	return pipeline.PerformanceSample{
		ComponentID:   id,
		Kind:          pipeline.KindNERModel,
		Domain:        "medical",
		LatencyMS:     latencyMS,
		AccuracyProxy: accuracy,
	}
}

func TestRingBufferWrapsAtCapacity(t *testing.T) {
	buf := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		buf.push(sample("a", int64(i), 0.5))
	}
	all := buf.all()
	if len(all) != 3 {
		t.Fatalf("len(all()) = %d, want 3", len(all))
	}
	// the buffer should hold the three most recent pushes: latencies 2,3,4
	got := map[int64]bool{}
	for _, s := range all {
		got[s.LatencyMS] = true
	}
	for _, want := range []int64{2, 3, 4} {
		if !got[want] {
			t.Errorf("ring buffer missing latency %d after wraparound, got %v", want, all)
		}
	}
}

func TestRecommendRequiresMinSamplesOnBothSides(t *testing.T) {
	o := New(100, StrategyBalanced, 5, 0.05, 0.05)
	for i := 0; i < 3; i++ {
		o.Ingest(sample("current", 500, 0.9))
		o.Ingest(sample("candidate", 100, 0.95))
	}
	if rec := o.Recommend(pipeline.KindNERModel, "medical", "current", 2000); rec != nil {
		t.Fatalf("Recommend() = %+v, want nil (insufficient samples)", rec)
	}
}

func TestRecommendReturnsBetterCandidate(t *testing.T) {
	o := New(100, StrategyBalanced, 5, 0.01, 0.05)
	for i := 0; i < 10; i++ {
		o.Ingest(sample("current", 1800, 0.70))
		o.Ingest(sample("candidate", 100, 0.95))
	}

	rec := o.Recommend(pipeline.KindNERModel, "medical", "current", 2000)
	if rec == nil {
		t.Fatal("Recommend() = nil, want a recommendation")
	}
	if rec.CandidateID != "candidate" {
		t.Fatalf("CandidateID = %q, want %q", rec.CandidateID, "candidate")
	}
	if rec.CandidateScore <= rec.CurrentScore {
		t.Fatalf("CandidateScore %.4f should exceed CurrentScore %.4f", rec.CandidateScore, rec.CurrentScore)
	}
}

func TestRecommendNoneWhenWithinThreshold(t *testing.T) {
	o := New(100, StrategyBalanced, 5, 0.5, 0.05)
	for i := 0; i < 10; i++ {
		o.Ingest(sample("current", 500, 0.80))
		o.Ingest(sample("candidate", 480, 0.81))
	}
	if rec := o.Recommend(pipeline.KindNERModel, "medical", "current", 2000); rec != nil {
		t.Fatalf("Recommend() = %+v, want nil (difference within threshold)", rec)
	}
}

func TestRecommendUnknownCurrentReturnsNil(t *testing.T) {
	o := New(100, StrategyBalanced, 5, 0.05, 0.05)
	if rec := o.Recommend(pipeline.KindNERModel, "medical", "never-seen", 2000); rec != nil {
		t.Fatalf("Recommend() = %+v, want nil for unobserved component", rec)
	}
}

func TestScoreStrategies(t *testing.T) {
	o := New(100, StrategyLatency, 1, 0, 0)
	samples := []pipeline.PerformanceSample{
		{LatencyMS: 1000, AccuracyProxy: 0.5, ThroughputEPS: 10},
	}

	if got := o.score(samples, 2000); got != 0.5 {
		t.Errorf("LATENCY score = %v, want 0.5", got)
	}

	o.Strategy = StrategyAccuracy
	if got := o.score(samples, 2000); got != 0.5 {
		t.Errorf("ACCURACY score = %v, want 0.5", got)
	}

	o.Strategy = StrategyThroughput
	if got := o.score(samples, 2000); got != 10 {
		t.Errorf("THROUGHPUT score = %v, want 10", got)
	}
}
