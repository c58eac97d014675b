package eventstore

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetCreated struct {
	Name string `json:"name"`
}

func (widgetCreated) EventNamespace() string { return "widget" }
func (widgetCreated) EventType() string      { return "Created" }

func newTestRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("widget", "Created", func() EventData { return &widgetCreated{} })
	return r
}

func TestCodecEncodeDecodeRoundTrip(t *testing.T) {
	codec := NewCodec(newTestRegistry())
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	ev := Event{
		ID:      uuid.New(),
		Data:    widgetCreated{Name: "gizmo"},
		Context: EventContext{Time: now},
	}

	body, err := codec.Encode(ev)
	require.NoError(t, err)

	decoded, err := codec.Decode(body)
	require.NoError(t, err)

	assert.Equal(t, ev.ID, decoded.ID)
	assert.True(t, decoded.Context.Time.Equal(now))

	data, ok := decoded.Data.(*widgetCreated)
	require.True(t, ok)
	assert.Equal(t, "gizmo", data.Name)
}

func TestCodecDecodeLegacyTypeField(t *testing.T) {
	codec := NewCodec(newTestRegistry())

	raw := []byte(`{
		"id": "` + uuid.New().String() + `",
		"data": {"type": "widget.Created", "name": "legacy"},
		"context": {"time": "2024-03-01T10:00:00Z"}
	}`)

	ev, err := codec.Decode(raw)
	require.NoError(t, err)

	data, ok := ev.Data.(*widgetCreated)
	require.True(t, ok)
	assert.Equal(t, "legacy", data.Name)
}

func TestCodecDecodeUnknownVariant(t *testing.T) {
	codec := NewCodec(NewRegistry())

	raw := []byte(`{
		"id": "` + uuid.New().String() + `",
		"data": {"event_namespace": "widget", "event_type": "Created", "name": "x"},
		"context": {"time": "2024-03-01T10:00:00Z"}
	}`)

	_, err := codec.Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownVariant))
}

func TestCodecDecodeMalformedEnvelope(t *testing.T) {
	codec := NewCodec(newTestRegistry())

	raw := []byte(`{"id": "` + uuid.New().String() + `", "data": {"name": "x"}, "context": {"time": "2024-03-01T10:00:00Z"}}`)

	_, err := codec.Decode(raw)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedEnvelope))
}

func TestCodecDecodeNaiveTimestamp(t *testing.T) {
	codec := NewCodec(newTestRegistry())

	raw := []byte(`{
		"id": "` + uuid.New().String() + `",
		"data": {"event_namespace": "widget", "event_type": "Created", "name": "x"},
		"context": {"time": "2024-03-01 10:00:00"}
	}`)

	ev, err := codec.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 2024, ev.Context.Time.Year())
}

func TestCodecRoundTripPreservesSubject(t *testing.T) {
	codec := NewCodec(newTestRegistry())
	subject := json.RawMessage(`{"user_id":"u1"}`)

	ev := Event{
		ID:      uuid.New(),
		Data:    widgetCreated{Name: "gizmo"},
		Context: EventContext{Time: time.Now(), Subject: subject},
	}

	body, err := codec.Encode(ev)
	require.NoError(t, err)

	decoded, err := codec.Decode(body)
	require.NoError(t, err)
	assert.JSONEq(t, string(subject), string(decoded.Context.Subject))
}
