package eventstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/baechuer/eventstore/eventstore/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribableStoreReplaysBacklogOnSubscribe(t *testing.T) {
	ctx := context.Background()
	log := memory.NewLogStore()
	cache := memory.NewCache()
	bus := memory.NewBus()
	registry := newTestRegistry()
	store := NewStore("widgets", log, cache, bus, registry)

	sub, err := NewSubscribableStore(ctx, store)
	require.NoError(t, err)
	defer sub.Close()

	// an event saved before any subscriber exists — only replay will
	// deliver it.
	ev := Event{ID: uuid.New(), Data: widgetCreated{Name: "early"}}
	_, err = store.Save(ctx, ev)
	require.NoError(t, err)

	var mu sync.Mutex
	var received []string
	_, err = sub.Subscribe(ctx, Kind{Namespace: "widget", Type: "Created"}, HandlerFunc(func(_ context.Context, body []byte) error {
		decoded, derr := store.codec.Decode(body)
		if derr != nil {
			return derr
		}
		mu.Lock()
		received = append(received, decoded.Data.(*widgetCreated).Name)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	bus.Wait()
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
		bus.Wait()
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "early", received[0])
}

func TestSubscriptionStateTransitions(t *testing.T) {
	ctx := context.Background()
	log := memory.NewLogStore()
	cache := memory.NewCache()
	bus := memory.NewBus()
	store := NewStore("widgets", log, cache, bus, newTestRegistry())

	sub, err := NewSubscribableStore(ctx, store)
	require.NoError(t, err)
	defer sub.Close()

	s, err := sub.Subscribe(ctx, Kind{Namespace: "widget", Type: "Created"}, HandlerFunc(func(context.Context, []byte) error {
		return nil
	}))
	require.NoError(t, err)
	assert.NotEqual(t, StateFailed, s.State())

	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())
}

func TestSubscribableStoreDedupSkipsSeenEvents(t *testing.T) {
	ctx := context.Background()
	log := memory.NewLogStore()
	cache := memory.NewCache()
	bus := memory.NewBus()
	dedup := &fakeDedup{seen: map[string]bool{}}
	store := NewStore("widgets", log, cache, bus, newTestRegistry())

	sub, err := NewSubscribableStore(ctx, store, WithIdempotencyStore(dedup))
	require.NoError(t, err)
	defer sub.Close()

	var calls int
	var mu sync.Mutex
	_, err = sub.Subscribe(ctx, Kind{Namespace: "widget", Type: "Created"}, HandlerFunc(func(context.Context, []byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	ev := Event{ID: uuid.New(), Data: widgetCreated{Name: "once"}}
	body, err := store.codec.Encode(ev)
	require.NoError(t, err)

	// direct-publish the same body twice on the topic, simulating a
	// redelivered message; dedup should only let the first through.
	require.NoError(t, bus.Publish(ctx, Kind{Namespace: "widget", Type: "Created"}.Topic(), body))
	require.NoError(t, bus.Publish(ctx, Kind{Namespace: "widget", Type: "Created"}.Topic(), body))
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (f *fakeDedup) SeenOrMark(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.seen[id] {
		return true, nil
	}
	f.seen[id] = true
	return false, nil
}
