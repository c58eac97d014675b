// Package memory provides in-memory LogStore, KVCache and Bus test doubles,
// grounded on the original reference implementation's testhelpers and
// StubEmitterAdapter: fast, deterministic stand-ins for exercising the
// eventstore pipeline without a database or broker.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/baechuer/eventstore/eventstore"
)

// LogStore is an in-memory, goroutine-safe eventstore.LogStore. Events are
// kept in append order per (namespace, type) and re-sorted on read to
// honor the context.time ASC, id ASC ordering contract.
type LogStore struct {
	mu     sync.RWMutex
	byKind map[eventstore.Kind][]eventstore.Event
	seen   map[string]struct{}
}

// NewLogStore returns an empty in-memory log.
func NewLogStore() *LogStore {
	return &LogStore{
		byKind: make(map[eventstore.Kind][]eventstore.Event),
		seen:   make(map[string]struct{}),
	}
}

// Append records ev, failing with ErrConflict if its id was already
// appended anywhere in this log (ids are globally unique, not scoped to a
// single kind).
func (s *LogStore) Append(ctx context.Context, ev eventstore.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := ev.ID.String()
	if _, exists := s.seen[id]; exists {
		return &eventstore.StoreError{Kind: eventstore.ErrConflict, Op: "append", Key: id}
	}
	s.seen[id] = struct{}{}

	k := eventstore.KindOfData(ev.Data)
	s.byKind[k] = append(s.byKind[k], ev)
	return nil
}

// ReadSince returns a snapshot of events of (namespace, typ) with
// context.time >= *since (or all, if since is nil), ordered by
// context.time ASC, ties broken by id ASC.
func (s *LogStore) ReadSince(ctx context.Context, namespace, typ string, since *time.Time) (eventstore.EventStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	src := s.byKind[eventstore.Kind{Namespace: namespace, Type: typ}]
	out := make([]eventstore.Event, 0, len(src))
	for _, ev := range src {
		if since == nil || !ev.Context.Time.Before(*since) {
			out = append(out, ev)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Context.Time.Equal(out[j].Context.Time) {
			return out[i].Context.Time.Before(out[j].Context.Time)
		}
		return out[i].ID.String() < out[j].ID.String()
	})

	return eventstore.NewSliceStream(out), nil
}

// LastOf returns the event of (namespace, typ) with the greatest
// context.time, ties broken by id, or nil if none exist.
func (s *LogStore) LastOf(ctx context.Context, namespace, typ string) (*eventstore.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream, err := s.ReadSince(ctx, namespace, typ, nil)
	if err != nil {
		return nil, err
	}
	events, err := eventstore.Drain(ctx, stream)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	last := events[len(events)-1]
	return &last, nil
}
