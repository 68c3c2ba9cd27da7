package config

// OptimizerConfig configures the self-optimizer (spec §4.7): its scoring
// strategy and the thresholds that gate a swap recommendation.
type OptimizerConfig struct {
	Strategy             string  `yaml:"strategy" json:"strategy"` // BALANCED, LATENCY, ACCURACY, THROUGHPUT, COST
	MinSamples           int     `yaml:"min_samples" json:"min_samples"`
	PerformanceThreshold float64 `yaml:"performance_threshold" json:"performance_threshold"`
	WindowSize           int     `yaml:"window_size" json:"window_size"` // ring buffer capacity per (kind,component,domain)
	SignificanceAlpha    float64 `yaml:"significance_alpha" json:"significance_alpha"`
}
