// Package kv provides the key/value persistence collaborator used for
// collection snapshots, cached embeddings, and cached responses. Callers
// treat the store as best-effort: a nil or failing store degrades to
// in-memory behavior, it never aborts the caller's operation.
package kv

import (
	"context"
	"time"
)

// Store is a key/value store with per-entry TTL.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key. A ttl of zero or less means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
