// Package eventstore implements an event-sourced persistence and pub/sub
// core: events are appended to a durable log, fanned out over a bus, folded
// into aggregates through a cache-accelerated pipeline, and replayed to
// subscribers that missed them. See SPEC_FULL.md for the full design.
package eventstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventData is the payload carried by an Event. Concrete application
// types implement this to declare which (namespace, type) pair they are
// registered under — the Go stand-in for the original reference
// implementation's compile-time derive-macro metadata (see SPEC_FULL.md
// §3, "Variant registry").
type EventData interface {
	EventNamespace() string
	EventType() string
}

// EventContext carries the ordering/ownership metadata that rides along
// with every event: when it happened (the sole ordering key for replay and
// cache watermarks), and two opaque, optional application fields.
type EventContext struct {
	// Time is a UTC instant with microsecond resolution, assigned by the
	// producer at save time.
	Time time.Time
	// Subject is an optional opaque JSON value carried through unchanged.
	Subject json.RawMessage
	// Action is an optional opaque JSON value carried through unchanged.
	Action json.RawMessage
}

// Event is an immutable record: an id, a typed payload, and a context.
// Equality on Id is the sole deduplication key across sources.
type Event struct {
	ID      uuid.UUID
	Data    EventData
	Context EventContext
}

// Namespace returns the event's logical namespace, delegating to Data.
func (e Event) Namespace() string { return e.Data.EventNamespace() }

// Type returns the event's logical type, delegating to Data.
func (e Event) Type() string { return e.Data.EventType() }

// Kind is the (namespace, type) pair that identifies a logical event
// variant: used for routing, filtering, and replay.
type Kind struct {
	Namespace string
	Type      string
}

func (k Kind) String() string { return k.Namespace + "." + k.Type }

// Topic returns the bus routing key for this kind: "<namespace>.<type>".
func (k Kind) Topic() string { return k.Namespace + "." + k.Type }

// Queue returns the durable-consumer queue name for this kind, scoped to a
// store namespace so multiple logical stores can subscribe to the same
// topic without cross-consumption: "<storeNamespace>-<namespace>.<type>".
func (k Kind) Queue(storeNamespace string) string {
	return storeNamespace + "-" + k.Topic()
}

// KindOfData returns the Kind for a given payload value.
func KindOfData(d EventData) Kind {
	return Kind{Namespace: d.EventNamespace(), Type: d.EventType()}
}
