// Package redis provides a go-redis/v9-backed eventstore.KVCache, grounded
// on event-service/internal/infrastructure/caching/redis/client.go.
package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/baechuer/eventstore/eventstore"
	"github.com/redis/go-redis/v9"
)

// Cache is a go-redis/v9-backed eventstore.KVCache. value and cached_at are
// written together inside one JSON envelope in a single SET, so a
// concurrent Get can never observe a value from one Put and a timestamp
// from another (spec.md §4.3's "inconsistent reads ... are not
// [permitted]").
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

// envelope is the value actually stored under key.
type envelope struct {
	Value    json.RawMessage `json:"value"`
	CachedAt time.Time       `json:"cached_at"`
}

// New connects to url (a redis:// connection string) and verifies
// reachability with a Ping, mirroring the teacher's client constructor. ttl
// of zero means entries never expire.
func New(url string, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrConfig, Op: "redis.new", Err: err}
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "redis.ping", Err: err}
	}

	return &Cache{rdb: rdb, ttl: ttl}, nil
}

// Close releases the underlying connection pool.
func (c *Cache) Close() error { return c.rdb.Close() }

// Get returns the cached value and write timestamp for key, if present.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, time.Time, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "cache.get", Key: key, Err: err}
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, time.Time{}, false, &eventstore.StoreError{Kind: eventstore.ErrMalformedEnvelope, Op: "cache.get", Key: key, Err: err}
	}
	return []byte(env.Value), env.CachedAt.UTC(), true, nil
}

// Put stores value under key, stamping cached_at to the current wall
// clock — never a caller-supplied timestamp.
func (c *Cache) Put(ctx context.Context, key string, value []byte) error {
	env := envelope{Value: json.RawMessage(value), CachedAt: time.Now().UTC()}
	raw, err := json.Marshal(env)
	if err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrMalformedEnvelope, Op: "cache.put", Key: key, Err: err}
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return &eventstore.StoreError{Kind: eventstore.ErrIo, Op: "cache.put", Key: key, Err: err}
	}
	return nil
}
