package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/baechuer/eventstore/eventstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusPublishDeliversToSubscriber(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()

	var mu sync.Mutex
	var got string
	_, err := bus.Subscribe(ctx, "topic.a", "q", eventstore.HandlerFunc(func(_ context.Context, body []byte) error {
		mu.Lock()
		got = string(body)
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic.a", []byte("hello")))
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "hello", got)
}

func TestBusPublishIgnoresOtherTopics(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()

	called := false
	_, err := bus.Subscribe(ctx, "topic.a", "q", eventstore.HandlerFunc(func(context.Context, []byte) error {
		called = true
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic.b", []byte("x")))
	bus.Wait()

	assert.False(t, called)
}

func TestBusConsumerStopHaltsDelivery(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()

	var calls int
	var mu sync.Mutex
	consumer, err := bus.Subscribe(ctx, "topic.a", "q", eventstore.HandlerFunc(func(context.Context, []byte) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, consumer.Stop())
	require.NoError(t, bus.Publish(ctx, "topic.a", []byte("x")))
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, calls)
}

func TestBusMultipleSubscribersEachReceive(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()

	var mu sync.Mutex
	var aCalls, bCalls int
	_, err := bus.Subscribe(ctx, "topic.a", "q1", eventstore.HandlerFunc(func(context.Context, []byte) error {
		mu.Lock()
		aCalls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)
	_, err = bus.Subscribe(ctx, "topic.a", "q2", eventstore.HandlerFunc(func(context.Context, []byte) error {
		mu.Lock()
		bCalls++
		mu.Unlock()
		return nil
	}))
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, "topic.a", []byte("x")))
	bus.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, aCalls)
	assert.Equal(t, 1, bCalls)
}
