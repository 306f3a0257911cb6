package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// KeyLength is the number of hex characters kept from the digest (64 bits).
const KeyLength = 16

// GenerateKey derives a fixed-length cache key for an enrichment request.
//
// The sha256 digest is truncated to KeyLength hex characters. Two different
// inputs can therefore map to the same key; at 64 bits the odds are
// negligible for the number of findings a cache holds, and a collision only
// returns a stale remediation for a different finding.
func GenerateKey(attributeID string, score float64, evidenceHash string) string {
	input := attributeID + "|" + strconv.FormatFloat(score, 'f', -1, 64) + "|" + evidenceHash
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:KeyLength]
}

// HashEvidence produces the evidence component of GenerateKey. Order matters.
func HashEvidence(evidence []string) string {
	sum := sha256.Sum256([]byte(strings.Join(evidence, "\x00")))
	return hex.EncodeToString(sum[:])
}
