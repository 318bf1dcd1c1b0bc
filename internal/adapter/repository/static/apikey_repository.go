// Package static serves lookups from values fixed at startup.
package static

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"strings"
)

// APIKeyRepository implements domain.APIKeyRepository over a fixed key list.
type APIKeyRepository struct {
	digests [][sha256.Size]byte
}

// NewAPIKeyRepository creates a repository accepting keys. Blank entries are ignored.
func NewAPIKeyRepository(keys []string) *APIKeyRepository {
	r := &APIKeyRepository{}
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			r.digests = append(r.digests, sha256.Sum256([]byte(k)))
		}
	}
	return r
}

// Len returns the number of configured keys.
func (r *APIKeyRepository) Len() int {
	return len(r.digests)
}

// IsValid compares key digests in constant time.
func (r *APIKeyRepository) IsValid(ctx context.Context, key string) (bool, error) {
	d := sha256.Sum256([]byte(key))
	valid := 0
	for i := range r.digests {
		valid |= subtle.ConstantTimeCompare(d[:], r.digests[i][:])
	}
	return valid == 1, nil
}
