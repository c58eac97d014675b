package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/baechuer/eventstore/eventstore/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

func TestSaveAppendsAndPublishes(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()
	log := memory.NewLogStore()
	cache := memory.NewCache()
	bus := memory.NewBus()
	store := NewStore("test", log, cache, bus, registry)

	received := make(chan []byte, 1)
	_, err := bus.Subscribe(ctx, Kind{Namespace: "widget", Type: "Created"}.Topic(), "q", HandlerFunc(func(_ context.Context, body []byte) error {
		received <- body
		return nil
	}))
	require.NoError(t, err)

	ev := Event{ID: uuid.New(), Data: widgetCreated{Name: "gizmo"}}
	result, err := store.Save(ctx, ev)
	require.NoError(t, err)
	assert.True(t, result.Appended)
	assert.True(t, result.Published)

	bus.Wait()
	select {
	case body := <-received:
		assert.Contains(t, string(body), "gizmo")
	default:
		t.Fatal("expected published body")
	}

	stream, err := log.ReadSince(ctx, "widget", "Created", nil)
	require.NoError(t, err)
	events, err := Drain(ctx, stream)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, ev.ID, events[0].ID)
}

func TestSaveAssignsClockTimeWhenZero(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()
	log := memory.NewLogStore()
	cache := memory.NewCache()
	bus := memory.NewBus()
	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store := NewStore("test", log, cache, bus, registry, WithClock(fixedClock{t: want}))

	ev := Event{ID: uuid.New(), Data: widgetCreated{Name: "x"}}
	_, err := store.Save(ctx, ev)
	require.NoError(t, err)

	last, err := log.LastOf(ctx, "widget", "Created")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Context.Time.Equal(want))
}

func TestSaveConflictOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()
	log := memory.NewLogStore()
	cache := memory.NewCache()
	bus := memory.NewBus()
	store := NewStore("test", log, cache, bus, registry)

	ev := Event{ID: uuid.New(), Data: widgetCreated{Name: "x"}}
	_, err := store.Save(ctx, ev)
	require.NoError(t, err)

	_, err = store.Save(ctx, ev)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}
