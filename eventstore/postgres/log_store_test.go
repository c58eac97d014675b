package postgres

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassembleEnvelope(t *testing.T) {
	id := uuid.New()
	data := json.RawMessage(`{"event_namespace":"widget","event_type":"Created","name":"gizmo"}`)
	context := json.RawMessage(`{"time":"2024-03-01T10:00:00Z"}`)

	out, err := reassembleEnvelope(id, data, context)
	require.NoError(t, err)

	var wire struct {
		ID      uuid.UUID       `json:"id"`
		Data    json.RawMessage `json:"data"`
		Context json.RawMessage `json:"context"`
	}
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, id, wire.ID)
	assert.JSONEq(t, string(data), string(wire.Data))
	assert.JSONEq(t, string(context), string(wire.Context))
}
