package eventstore

import (
	"context"
	"time"
)

// KVCache is the snapshot-acceleration capability (spec.md §4.3). It is
// never authoritative: losing the cache must degrade performance only,
// never correctness.
type KVCache interface {
	// Get returns the cached value and the server-authored timestamp at
	// which it was written, or ok=false if no value is cached for key.
	Get(ctx context.Context, key string) (value []byte, cachedAt time.Time, ok bool, err error)

	// Put stores value under key. The implementation stamps the write
	// timestamp itself — never the caller's — per spec.md §4.3.
	Put(ctx context.Context, key string, value []byte) error
}
