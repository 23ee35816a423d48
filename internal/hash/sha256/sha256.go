// Package sha256 computes the payload digest attached to published reports.
//
// The Pub/Sub sink publishes the digest as report_sha256 in the run summary,
// so a subscriber holding the report from stdout or another sink can check it
// has the same bytes the run encoded.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher satisfies report.Hasher with a lowercase hex SHA-256 digest.
type Hasher struct{}

// New returns a Hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of an encoded report payload. It never fails;
// the error exists to satisfy report.Hasher.
func (h *Hasher) Hash(payload []byte) (string, error) {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:]), nil
}
