// Package store holds the persistence rules shared by every verification
// repository backend.
package store

import (
	"bgv/internal/verification/models"
	"bgv/pkg/platform/sentinel"
)

// EnsureWritable rejects writes under a closed case. Every backend calls it
// before mutating a case, its checks, documents or risk score; the timeline is
// append-only and exempt.
func EnsureWritable(c *models.Case) error {
	if c.IsImmutable {
		return sentinel.ErrImmutable
	}
	return nil
}

// EnsureVersion implements optimistic concurrency: a write must carry the
// version it read.
func EnsureVersion(stored, incoming int) error {
	if stored != incoming {
		return sentinel.ErrConflict
	}
	return nil
}
