package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/baechuer/eventstore/eventstore"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CacheSchema is the DDL for the snapshot_cache table.
const CacheSchema = `
CREATE TABLE IF NOT EXISTS snapshot_cache (
    key       text PRIMARY KEY,
    value     jsonb NOT NULL,
    cached_at timestamptz NOT NULL
);
`

// Cache is a pgx/v5-backed eventstore.KVCache over snapshot_cache, for
// embedders who want a single database rather than an additional Redis
// dependency — the direct generalization of the original reference
// implementation's PgCacheAdapter.
type Cache struct {
	pool *pgxpool.Pool
}

// NewCache wraps pool.
func NewCache(pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool}
}

// Get returns the cached value and write timestamp for key, if present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	var value []byte
	var cachedAt time.Time

	err := c.pool.QueryRow(ctx, `SELECT value, cached_at FROM snapshot_cache WHERE key = $1`, key).Scan(&value, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "cache.get", Key: key, Err: err}
	}
	return value, cachedAt.UTC(), true, nil
}

// Put upserts value under key. cached_at is stamped by Postgres's now(),
// the wall-clock write-time authority — never the Go caller's clock — so
// value and timestamp can never be observed torn across a concurrent Get.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO snapshot_cache (key, value, cached_at) VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, cached_at = now()
	`, key, value)
	if err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "cache.put", Key: key, Err: err}
	}
	return nil
}
