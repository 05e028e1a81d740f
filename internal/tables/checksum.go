package tables

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SHA256Hex returns the bare lowercase hex digest of data.
// Page sidecars and the run manifest carry digests in this form.
func SHA256Hex(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ComputeChecksum computes a prefixed SHA256 checksum for the given data.
func ComputeChecksum(data []byte) string {
	return "sha256:" + SHA256Hex(data)
}

// VerifyChecksum verifies that data matches the expected checksum.
// Both prefixed and bare hex forms are accepted.
func VerifyChecksum(data []byte, expected string) bool {
	return SHA256Hex(data) == strings.TrimPrefix(expected, "sha256:")
}
