package eventstore

import (
	"context"
	"time"
)

// EventStream is a forward-only iterator over a log read, rather than a
// materialized slice, so an adapter backed by a cursor (e.g. pgx rows) need
// not buffer the whole result in memory (spec.md §2's "Stream<Event>"
// data-flow note).
type EventStream interface {
	// Next advances to the next event. It returns (Event{}, false, nil) when
	// the stream is exhausted, and (Event{}, false, err) on failure.
	Next(ctx context.Context) (Event, bool, error)
	// Close releases any resources (e.g. an open cursor) held by the stream.
	Close() error
}

// LogStore is the append-only event log capability (spec.md §4.2). Appends
// are idempotent on primary key; reads are ordered by context.time ASC,
// ties broken by id ASC.
type LogStore interface {
	// Append persists ev. It returns an error wrapping ErrConflict if an
	// event with the same id already exists.
	Append(ctx context.Context, ev Event) error

	// ReadSince returns events of kind (namespace, type) with
	// context.time >= *since (or all events of that kind if since is nil),
	// ordered by context.time ASC, ties broken by id ASC.
	ReadSince(ctx context.Context, namespace, typ string, since *time.Time) (EventStream, error)

	// LastOf returns the event of kind (namespace, type) with the greatest
	// context.time (ties broken by id), or nil if none exist.
	LastOf(ctx context.Context, namespace, typ string) (*Event, error)
}

// sliceStream is a trivial EventStream over an in-memory slice, shared by
// the memory adapter and anything else that already has events materialized.
type sliceStream struct {
	events []Event
	pos    int
}

// NewSliceStream wraps an already-materialized, correctly-ordered slice of
// events as an EventStream.
func NewSliceStream(events []Event) EventStream {
	return &sliceStream{events: events}
}

func (s *sliceStream) Next(ctx context.Context) (Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}
	if s.pos >= len(s.events) {
		return Event{}, false, nil
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, true, nil
}

func (s *sliceStream) Close() error { return nil }

// Drain reads every remaining event out of stream into a slice, closing the
// stream when done. Convenience helper for callers (including the
// aggregator) that want the full backlog rather than incremental iteration.
func Drain(ctx context.Context, stream EventStream) ([]Event, error) {
	defer stream.Close()

	var out []Event
	for {
		ev, ok, err := stream.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, ev)
	}
}
