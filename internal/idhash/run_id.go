package idhash

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

// ComputeRunID computes a run identifier using SHA256.
// Formula: SHA256(created_at_ns|seed|sequence), base58-encoded and truncated
// to 16 characters. The sequence counter disambiguates runs created within
// the same nanosecond.
func ComputeRunID(createdAtNs int64, seed int64, sequence uint64) string {
	data := fmt.Sprintf("%d|%d|%d", createdAtNs, seed, sequence)

	hash := sha256.Sum256([]byte(data))
	return "run_" + base58.Encode(hash[:])[:16]
}

// ComputeCandidateID computes a deterministic candidate id.
// Formula: SHA256(symbol|timeframe|expression), base58-encoded and truncated
// to 12 characters. Identical inputs always yield identical ids, which the
// reproducibility guarantees rely on.
func ComputeCandidateID(symbol, timeframe, expression string) string {
	data := fmt.Sprintf("%s|%s|%s", symbol, timeframe, expression)

	hash := sha256.Sum256([]byte(data))
	return "c_" + base58.Encode(hash[:])[:12]
}
