package eventstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const replayNamespace = "event_store"
const replayType = "EventReplayRequested"

// EventReplayRequested is the reserved, first-class event that drives
// catch-up replay (spec.md §4.7). It is published directly to the bus, not
// appended to the log: it is a transient signal, not durable history.
type EventReplayRequested struct {
	RequestedEventNamespace string    `json:"requested_event_namespace"`
	RequestedEventType      string    `json:"requested_event_type"`
	Since                   time.Time `json:"since"`
}

func (EventReplayRequested) EventNamespace() string { return replayNamespace }
func (EventReplayRequested) EventType() string      { return replayType }

// SubscriptionState is a point in the subscription lifecycle (spec.md
// §4.7). Exposed for introspection and tests; it is not part of the wire
// protocol, which has no explicit boundary marker between CATCHING_UP and
// LIVE.
type SubscriptionState int32

const (
	StateNew SubscriptionState = iota
	StateListening
	StateCatchingUp
	StateLive
	StateStopped
	StateFailed
)

func (s SubscriptionState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateListening:
		return "LISTENING"
	case StateCatchingUp:
		return "CATCHING_UP"
	case StateLive:
		return "LIVE"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Subscription is a live handle on a subscribed event kind.
type Subscription struct {
	kind     Kind
	state    atomic.Int32
	consumer Consumer
}

// State returns the subscription's current lifecycle state.
func (s *Subscription) State() SubscriptionState { return SubscriptionState(s.state.Load()) }

func (s *Subscription) setState(st SubscriptionState) { s.state.Store(int32(st)) }

// Stop halts delivery for this subscription.
func (s *Subscription) Stop() error {
	s.setState(StateStopped)
	return s.consumer.Stop()
}

// IdempotencyStore is the dedup accelerator consulted by SubscribableStore
// before a handler runs (spec.md §4.7, SPEC_FULL.md A4). Implementations
// (e.g. eventstore/idempotency) key on event id; a store that is itself
// unavailable must report that via err so delivery degrades to "no dedup"
// rather than blocking (same accelerator-not-authority posture as C3).
type IdempotencyStore interface {
	// SeenOrMark atomically checks-and-marks id as seen, returning
	// duplicate=true if it had already been marked.
	SeenOrMark(ctx context.Context, id string) (duplicate bool, err error)
}

// SubscribableStore layers subscription and replay (spec.md §4.7) on top
// of a Store. It owns every Consumer it creates and stops them all on
// Close (§5: "dropping the store cancels all its consumers").
type SubscribableStore struct {
	*Store

	dedup IdempotencyStore

	mu   sync.Mutex
	subs []*Subscription
}

// SubscribableStoreOption configures a SubscribableStore at construction.
type SubscribableStoreOption func(*SubscribableStore)

// WithIdempotencyStore enables dedup middleware on every handler registered
// through Subscribe.
func WithIdempotencyStore(d IdempotencyStore) SubscribableStoreOption {
	return func(s *SubscribableStore) { s.dedup = d }
}

// NewSubscribableStore wraps store with subscription and replay support,
// and immediately starts the replay responder: a built-in consumer on the
// reserved EventReplayRequested topic, present in every subscribable store
// per spec.md §4.7.
func NewSubscribableStore(ctx context.Context, store *Store, opts ...SubscribableStoreOption) (*SubscribableStore, error) {
	s := &SubscribableStore{Store: store}
	for _, opt := range opts {
		opt(s)
	}

	if !s.registry.Has(replayNamespace, replayType) {
		s.registry.MustRegister(replayNamespace, replayType, func() EventData { return &EventReplayRequested{} })
	}

	replayKind := Kind{Namespace: replayNamespace, Type: replayType}
	consumer, err := s.bus.Subscribe(ctx, replayKind.Topic(), replayKind.Queue(s.Namespace), HandlerFunc(s.handleReplayRequest))
	if err != nil {
		return nil, newErr(ErrIo, "subscribe.replay_responder", replayKind.String(), err)
	}

	sub := &Subscription{kind: replayKind, consumer: consumer}
	sub.setState(StateListening)
	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return s, nil
}

// Subscribe registers a durable consumer for kind and triggers catch-up
// replay (spec.md §4.7): create the consumer, find the last-seen event for
// this kind, and publish an EventReplayRequested so the built-in responder
// (running in every subscribable store, including this one) backfills
// anything missed since then.
func (s *SubscribableStore) Subscribe(ctx context.Context, kind Kind, handler Handler) (*Subscription, error) {
	sub := &Subscription{kind: kind}
	sub.setState(StateNew)

	wrapped := s.wrapHandler(sub, handler)
	consumer, err := s.bus.Subscribe(ctx, kind.Topic(), kind.Queue(s.Namespace), wrapped)
	if err != nil {
		sub.setState(StateFailed)
		return nil, newErr(ErrIo, "subscribe", kind.String(), err)
	}
	sub.consumer = consumer
	sub.setState(StateListening)

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	since := time.Unix(0, 0).UTC()
	if last, err := s.log.LastOf(ctx, kind.Namespace, kind.Type); err == nil && last != nil {
		since = last.Context.Time
	} else if err != nil {
		s.logger.Warn("subscribe: last_of failed, requesting full replay", "kind", kind.String(), "err", err)
	}

	sub.setState(StateCatchingUp)
	if err := s.requestReplay(ctx, kind, since); err != nil {
		sub.setState(StateFailed)
		return sub, err
	}

	return sub, nil
}

// wrapHandler applies dedup middleware (when configured) around a
// caller-supplied Handler, so replay-induced redelivery can be absorbed
// without every handler reimplementing id tracking.
func (s *SubscribableStore) wrapHandler(sub *Subscription, h Handler) Handler {
	return HandlerFunc(func(ctx context.Context, body []byte) error {
		ev, err := s.codec.Decode(body)
		if err != nil {
			s.logger.Error("subscribe: dropping malformed delivery", "kind", sub.kind.String(), "err", err)
			return err
		}

		if s.dedup != nil {
			dup, derr := s.dedup.SeenOrMark(ctx, ev.ID.String())
			if derr != nil {
				s.logger.Warn("subscribe: dedup store unavailable, delivering without dedup", "id", ev.ID, "err", derr)
			} else if dup {
				return nil
			}
		}

		err = h.Handle(ctx, body)
		if err == nil {
			sub.setState(StateLive)
		}
		return err
	})
}

// requestReplay publishes an EventReplayRequested for kind directly to the
// bus (it is never appended to the log: spec.md treats it as a transient
// signal, not durable history).
func (s *SubscribableStore) requestReplay(ctx context.Context, kind Kind, since time.Time) error {
	req := EventReplayRequested{
		RequestedEventNamespace: kind.Namespace,
		RequestedEventType:      kind.Type,
		Since:                   since,
	}
	ev := Event{
		ID:      uuid.New(),
		Data:    req,
		Context: EventContext{Time: s.clock.Now()},
	}
	body, err := s.codec.Encode(ev)
	if err != nil {
		return newErr(ErrIo, "subscribe.encode_replay_request", kind.String(), err)
	}
	replayKind := Kind{Namespace: replayNamespace, Type: replayType}
	if err := s.bus.Publish(ctx, replayKind.Topic(), body); err != nil {
		return newErr(ErrIo, "subscribe.publish_replay_request", kind.String(), err)
	}
	return nil
}

// handleReplayRequest is the built-in responder: on receipt of an
// EventReplayRequested, read the log since the requested watermark and
// re-publish each matching event to its original topic, where the
// requester's own consumer will pick it up (spec.md §4.7's "replay
// responder").
func (s *SubscribableStore) handleReplayRequest(ctx context.Context, body []byte) error {
	ev, err := s.codec.Decode(body)
	if err != nil {
		return err
	}
	reqPtr, ok := ev.Data.(*EventReplayRequested)
	if !ok {
		return newErr(ErrMalformedEnvelope, "replay_responder.decode", ev.ID.String(), nil)
	}
	req := *reqPtr

	since := req.Since
	stream, err := s.log.ReadSince(ctx, req.RequestedEventNamespace, req.RequestedEventType, &since)
	if err != nil {
		return newErr(ErrIo, "replay_responder.read_since", req.RequestedEventNamespace+"."+req.RequestedEventType, err)
	}
	events, err := Drain(ctx, stream)
	if err != nil {
		return newErr(ErrIo, "replay_responder.read_since", req.RequestedEventNamespace+"."+req.RequestedEventType, err)
	}

	topic := Kind{Namespace: req.RequestedEventNamespace, Type: req.RequestedEventType}.Topic()
	for _, replayed := range events {
		payload, err := s.codec.Encode(replayed)
		if err != nil {
			s.logger.Error("replay_responder: encode failed, skipping event", "id", replayed.ID, "err", err)
			continue
		}
		if err := s.bus.Publish(ctx, topic, payload); err != nil {
			s.logger.Warn("replay_responder: publish failed, original stays durable in log", "id", replayed.ID, "err", err)
		}
	}
	return nil
}

// Close stops every consumer this store created, including the replay
// responder (spec.md §5: "dropping the store cancels all its consumers").
func (s *SubscribableStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, sub := range s.subs {
		if err := sub.Stop(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.subs = nil
	return firstErr
}
