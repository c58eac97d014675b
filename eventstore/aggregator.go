package eventstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Aggregate folds a stream of events into a value of type T. Zero, Apply
// and Query are pure and MUST NOT suspend (spec.md §5): they never touch
// a driver boundary directly.
type Aggregate[T any] interface {
	// Zero returns the fold's starting value when no snapshot exists.
	Zero() T
	// Apply folds ev into acc, returning the new accumulated value.
	// Implementations that cannot otherwise guarantee idempotence MUST
	// track applied event ids themselves, since the aggregator's lower
	// bound on replay is inclusive (spec.md §9, resolved).
	Apply(acc T, ev Event) T
	// Query derives the StoreQuery (kind + cache key material) for args.
	// Two calls with equal args MUST produce an identical StoreQuery.
	Query(args any) (StoreQuery, error)
}

// StoreQuery names the event kind an aggregate folds over and the argument
// material its cache key is derived from.
type StoreQuery struct {
	Namespace string
	Type      string
	// KeyArgs is marshaled (sorted-key JSON, per SPEC_FULL.md §4.5) and
	// hashed to produce the cache key. It is typically the same value as
	// the args passed to Query, but callers may narrow it to only the
	// fields that affect the fold.
	KeyArgs any
}

// cacheKey derives the deterministic cache key for a StoreQuery: sha256 hex
// of the sorted-key JSON serialization of KeyArgs, prefixed by the kind, so
// two distinct kinds sharing structurally identical KeyArgs never collide.
// Grounded on event-service's cacheKeyPublicList hashing pattern.
func cacheKey(q StoreQuery) (string, error) {
	buf, err := json.Marshal(q.KeyArgs)
	if err != nil {
		return "", newErr(ErrIo, "cache_key", "", err)
	}
	sum := sha256.Sum256(buf)
	return q.Namespace + "." + q.Type + ":" + hex.EncodeToString(sum[:]), nil
}

// SnapshotEncoder serializes a fold result for storage in the KVCache.
// cachedAt rides alongside the blob as a first-class KVCache.Get return,
// not embedded in the encoded value itself.
type SnapshotEncoder[T any] interface {
	EncodeSnapshot(v T) ([]byte, error)
	DecodeSnapshot(data []byte) (T, error)
}

// JSONSnapshotEncoder is a SnapshotEncoder backed by encoding/json, enough
// for any aggregate value that round-trips through plain marshaling.
type JSONSnapshotEncoder[T any] struct{}

func (JSONSnapshotEncoder[T]) EncodeSnapshot(v T) ([]byte, error) { return json.Marshal(v) }

func (JSONSnapshotEncoder[T]) DecodeSnapshot(data []byte) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}

// Aggregator runs the cache-accelerated fold pipeline (spec.md §4.5) for a
// single Aggregate[T]. Construct one per aggregate type; it is safe for
// concurrent use.
type Aggregator[T any] struct {
	log     LogStore
	cache   KVCache
	agg     Aggregate[T]
	encoder SnapshotEncoder[T]
	logger  Logger
}

// NewAggregator wires a LogStore and KVCache behind Aggregate[T]. encoder
// controls how the fold result is serialized into the cache; pass a JSON
// encoder unless the aggregate has a more compact representation.
func NewAggregator[T any](log LogStore, cache KVCache, agg Aggregate[T], encoder SnapshotEncoder[T], logger Logger) *Aggregator[T] {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Aggregator[T]{log: log, cache: cache, agg: agg, encoder: encoder, logger: logger}
}

// AggregateWith runs agg's pipeline directly against a Store's LogStore and
// KVCache, for callers that don't want to hold onto a standalone
// Aggregator[T]. Go methods cannot carry their own type parameters, so this
// is a free function rather than a Store method.
func AggregateWith[T any](ctx context.Context, s *Store, agg Aggregate[T], encoder SnapshotEncoder[T], args any) (T, error) {
	return NewAggregator(s.log, s.cache, agg, encoder, s.logger).Run(ctx, args)
}

// Run executes the aggregator pipeline (spec.md §4.5) for args: cache-get,
// fold the delta since the snapshot watermark (or from zero), cache-put
// (advisory), return.
func (a *Aggregator[T]) Run(ctx context.Context, args any) (T, error) {
	var zero T

	query, err := a.agg.Query(args)
	if err != nil {
		return zero, newErr(ErrIo, "aggregate.query", "", err)
	}
	key, err := cacheKey(query)
	if err != nil {
		return zero, err
	}

	initial := a.agg.Zero()
	var since *time.Time

	if raw, cachedAt, ok, err := a.cache.Get(ctx, key); err == nil && ok {
		if v, derr := a.encoder.DecodeSnapshot(raw); derr == nil {
			initial = v
			t := cachedAt
			since = &t
		} else {
			a.logger.Warn("aggregator: discarding unreadable snapshot", "key", key, "err", derr)
		}
	} else if err != nil {
		a.logger.Warn("aggregator: cache read failed, falling back to full replay", "key", key, "err", err)
	}

	stream, err := a.log.ReadSince(ctx, query.Namespace, query.Type, since)
	if err != nil {
		return zero, newErr(ErrIo, "aggregate.read_since", key, err)
	}
	events, err := Drain(ctx, stream)
	if err != nil {
		return zero, newErr(ErrIo, "aggregate.read_since", key, err)
	}

	result := initial
	for _, ev := range events {
		result = a.agg.Apply(result, ev)
	}

	if encoded, eerr := a.encoder.EncodeSnapshot(result); eerr != nil {
		a.logger.Warn("aggregator: snapshot encode failed", "key", key, "err", eerr)
	} else if perr := a.cache.Put(ctx, key, encoded); perr != nil {
		a.logger.Warn("aggregator: snapshot cache write failed", "component", "aggregator", "key", key, "err", perr)
	}

	return result, nil
}
