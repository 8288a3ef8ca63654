package evidence

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// HashPrefix tags stored digests with their algorithm.
const HashPrefix = "sha256:"

// Hash streams r through SHA-256 and returns the prefixed hex digest.
func Hash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash document content: %w", err)
	}
	return HashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

// IntegrityResult reports a recomputed digest against the stored one.
type IntegrityResult struct {
	Match    bool   `json:"match"`
	Stored   string `json:"stored"`
	Computed string `json:"computed"`
}

// VerifyIntegrity recomputes the digest of r and compares it with stored.
// Stored digests without the algorithm prefix are accepted.
func VerifyIntegrity(r io.Reader, stored string) (IntegrityResult, error) {
	computed, err := Hash(r)
	if err != nil {
		return IntegrityResult{}, err
	}
	want := stored
	if !strings.HasPrefix(want, HashPrefix) {
		want = HashPrefix + want
	}
	want = strings.ToLower(want)
	return IntegrityResult{
		Match:    subtle.ConstantTimeCompare([]byte(want), []byte(computed)) == 1,
		Stored:   stored,
		Computed: computed,
	}, nil
}
