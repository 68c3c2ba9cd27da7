package trust

import (
	"crypto/sha256"
	"encoding/hex"
)

// ComputeChecksum hashes a component's identifying bytes (its source file
// contents, or some other deterministic encoding of what it claims to be)
// into the hex digest stored as ComponentDescriptor.Checksum and compared
// against a policy's expected value at registration time.
func ComputeChecksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ChecksumOK reports whether actual matches the policy's expected
// checksum for sourceURL. A source with no expected checksum declared has
// no checksum requirement and trivially passes (spec §4.6: "checksum not
// required").
func (v *Validator) ChecksumOK(sourceURL, actual string) bool {
	expected, required := v.policy.ExpectedChecksums[sourceURL]
	if !required {
		return true
	}
	return actual == expected
}
