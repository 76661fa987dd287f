// Package sha256 digests delivered reports for the run ledger.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Hasher implements report.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the hex digest of a document. Empty documents are rejected
// so a failed run never carries the digest of nothing.
func (h *Hasher) Hash(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errors.New("hash empty document")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
