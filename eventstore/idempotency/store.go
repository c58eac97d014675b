// Package idempotency provides a redigo/SETNX-backed dedup store
// implementing eventstore.IdempotencyStore, grounded on
// email-service/internal/infrastructure/idempotency/redis_store.go.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// DefaultTTL bounds how long an event id is remembered; past this window
// the dedup accelerator forgets it and a redelivery is processed again —
// acceptable because handlers are still required to be independently
// idempotent (spec.md §4.7).
const DefaultTTL = 24 * time.Hour

// Store is a redigo-backed eventstore.IdempotencyStore.
type Store struct {
	pool *redis.Pool
	ttl  time.Duration
}

// NewPool builds a redigo connection pool against addr, mirroring the
// teacher's dial/auth/select-db/test-on-borrow wiring.
func NewPool(addr, password string, db int) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     5,
		MaxActive:   20,
		IdleTimeout: 60 * time.Second,
		Wait:        true,
		Dial: func() (redis.Conn, error) {
			c, err := redis.Dial(
				"tcp",
				addr,
				redis.DialConnectTimeout(3*time.Second),
				redis.DialReadTimeout(3*time.Second),
				redis.DialWriteTimeout(3*time.Second),
			)
			if err != nil {
				return nil, err
			}
			if password != "" {
				if _, err := c.Do("AUTH", password); err != nil {
					_ = c.Close()
					return nil, err
				}
			}
			if db != 0 {
				if _, err := c.Do("SELECT", db); err != nil {
					_ = c.Close()
					return nil, err
				}
			}
			return c, nil
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < 30*time.Second {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// New wraps pool with a dedup TTL. ttl <= 0 uses DefaultTTL.
func New(pool *redis.Pool, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{pool: pool, ttl: ttl}
}

// SeenOrMark implements eventstore.IdempotencyStore: SET id "1" NX EX ttl.
// A successful NX set means this id was not seen before (returns
// duplicate=false); ErrNil means the key already existed (duplicate=true).
func (s *Store) SeenOrMark(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("idempotency: empty id")
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	secs := int64(s.ttl / time.Second)
	if secs <= 0 {
		secs = int64(DefaultTTL / time.Second)
	}

	reply, err := redis.String(conn.Do("SET", id, "1", "NX", "EX", secs))
	if err == redis.ErrNil {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return reply != "OK", nil
}
