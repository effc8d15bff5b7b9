// Package fingerprint derives a stable content identity used for
// deduplication across knowledge sources and for idempotent insight commits.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize collapses the cosmetic differences that make the same fact look
// distinct across sources: surrounding whitespace, letter case, and runs of
// internal whitespace (including newlines and tabs).
func Normalize(content string) string {
	fields := strings.Fields(strings.ToLower(content))
	return strings.Join(fields, " ")
}

// Hash returns the hex SHA-256 of the normalized content. Deterministic
// across runs; two near-identical strings from different sources collapse to
// the same value.
func Hash(content string) string {
	sum := sha256.Sum256([]byte(Normalize(content)))
	return hex.EncodeToString(sum[:])
}
