package memory

import "github.com/baechuer/eventstore/eventstore"

// Adjusted is the reference test event used to exercise the aggregator
// pipeline, grounded on the original reference implementation's
// testhelpers.rs TestIncrementEvent/TestDecrementEvent — collapsed into a
// single signed-delta variant since eventstore.StoreQuery reads a single
// (namespace, type) pair per SPEC_FULL.md §4.5's simplification of the
// original's arbitrary-SQL-per-aggregate design.
type Adjusted struct {
	By int `json:"by"`
}

func (Adjusted) EventNamespace() string { return "counter" }
func (Adjusted) EventType() string      { return "Adjusted" }

// Counter is the reference aggregate (testhelpers.rs's TestCounterEntity):
// folds Adjusted events into a running total, tracking applied ids itself
// so replay at an inclusive lower bound never double-counts (spec.md §9,
// resolved).
type Counter struct {
	Value   int
	Applied map[string]struct{}
}

// CounterQueryArgs names which counter instance to fold; every event of
// this kind in these tests belongs to the same counter, so ID is a
// constant discriminator rather than a real partition key.
type CounterQueryArgs struct {
	ID string `json:"id"`
}

// CounterAggregate implements eventstore.Aggregate[Counter].
type CounterAggregate struct{}

func (CounterAggregate) Zero() Counter {
	return Counter{Applied: make(map[string]struct{})}
}

func (CounterAggregate) Apply(acc Counter, ev eventstore.Event) Counter {
	id := ev.ID.String()
	if _, already := acc.Applied[id]; already {
		return acc
	}
	if acc.Applied == nil {
		acc.Applied = make(map[string]struct{})
	}
	acc.Applied[id] = struct{}{}

	switch data := ev.Data.(type) {
	case *Adjusted:
		acc.Value += data.By
	case Adjusted:
		acc.Value += data.By
	}
	return acc
}

func (CounterAggregate) Query(args any) (eventstore.StoreQuery, error) {
	a, ok := args.(CounterQueryArgs)
	if !ok {
		return eventstore.StoreQuery{}, &eventstore.StoreError{
			Kind: eventstore.ErrMalformedEnvelope,
			Op:   "counter.query",
		}
	}
	return eventstore.StoreQuery{
		Namespace: Adjusted{}.EventNamespace(),
		Type:      Adjusted{}.EventType(),
		KeyArgs:   a,
	}, nil
}

// CounterSnapshotEncoder is the JSON eventstore.SnapshotEncoder for Counter.
// It keeps the applied ids alongside the value, so events already folded
// into a snapshot and read again at the inclusive watermark are skipped on
// resume instead of being counted twice.
type CounterSnapshotEncoder struct{}

type counterSnapshot struct {
	Value   int      `json:"value"`
	Applied []string `json:"applied"`
}

func (CounterSnapshotEncoder) EncodeSnapshot(v Counter) ([]byte, error) {
	snap := counterSnapshot{Value: v.Value, Applied: make([]string, 0, len(v.Applied))}
	for id := range v.Applied {
		snap.Applied = append(snap.Applied, id)
	}
	return eventstore.JSONSnapshotEncoder[counterSnapshot]{}.EncodeSnapshot(snap)
}

func (CounterSnapshotEncoder) DecodeSnapshot(data []byte) (Counter, error) {
	snap, err := eventstore.JSONSnapshotEncoder[counterSnapshot]{}.DecodeSnapshot(data)
	if err != nil {
		return Counter{}, err
	}
	applied := make(map[string]struct{}, len(snap.Applied))
	for _, id := range snap.Applied {
		applied[id] = struct{}{}
	}
	return Counter{Value: snap.Value, Applied: applied}, nil
}
