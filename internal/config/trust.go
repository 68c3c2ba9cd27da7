package config

// TrustPolicyConfig configures the trust validator (spec §4.6): the
// minimum trust level required per component kind, whether KB providers
// must be served over HTTPS, and explicit allow/block lists by source URL.
type TrustPolicyConfig struct {
	MinTrustLevelByKind map[string]string `yaml:"min_trust_level_by_kind" json:"min_trust_level_by_kind"`
	RequireHTTPSForKB   bool              `yaml:"require_https_for_kb" json:"require_https_for_kb"`
	AllowList           []string          `yaml:"allow_list" json:"allow_list"`
	BlockList           []string          `yaml:"block_list" json:"block_list"`
	// ExpectedChecksums maps a source URL to the checksum its component
	// bytes must hash to. A source absent here has no checksum requirement.
	ExpectedChecksums map[string]string `yaml:"expected_checksums" json:"expected_checksums"`
}
