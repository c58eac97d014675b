package memory

import (
	"context"
	"sync"

	"github.com/baechuer/eventstore/eventstore"
)

type subscription struct {
	topic   string
	queue   string
	handler eventstore.Handler
	stopped bool
}

// Bus is an in-memory eventstore.Bus: Publish fans a message out to every
// still-open subscription on the same topic, each dispatched on its own
// goroutine so Publish never blocks on handler execution — the same
// not-authoritative, best-effort posture as StubEmitterAdapter in the
// original reference implementation's test helpers.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*subscription
	wg   sync.WaitGroup
}

// NewBus returns an empty in-memory bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Publish dispatches body to every live subscriber of topic.
func (b *Bus) Publish(ctx context.Context, topic string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	targets := append([]*subscription(nil), b.subs[topic]...)
	b.mu.Unlock()

	for _, sub := range targets {
		sub := sub
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.mu.Lock()
			stopped := sub.stopped
			b.mu.Unlock()
			if stopped {
				return
			}
			_ = sub.handler.Handle(ctx, body)
		}()
	}
	return nil
}

// Subscribe registers a durable (for the lifetime of this process) consumer
// on topic under queue. queue is recorded but not used for routing: every
// subscription on a topic receives its own copy of every message, so
// subscriptions that share a queue do not compete for messages the way
// consumers of a single broker queue do.
func (b *Bus) Subscribe(ctx context.Context, topic, queue string, h eventstore.Handler) (eventstore.Consumer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{topic: topic, queue: queue, handler: h}
	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	return &consumer{bus: b, sub: sub}, nil
}

// Wait blocks until every in-flight Publish dispatch has completed. Test
// helper only; real Bus adapters have no equivalent since delivery is
// asynchronous by nature.
func (b *Bus) Wait() { b.wg.Wait() }

type consumer struct {
	bus *Bus
	sub *subscription
}

// Stop marks the subscription inactive. Already-dispatched goroutines for
// in-flight messages are not cancelled, matching a real consumer's
// best-effort shutdown.
func (c *consumer) Stop() error {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	c.sub.stopped = true
	return nil
}
