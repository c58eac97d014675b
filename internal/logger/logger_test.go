package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWarnEmitsJSONWithFields(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "warn")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	l := NewWithWriter(w)

	l.Warn("cache miss", "key", "widget.Created:abc", "attempt", 2)
	require.NoError(t, w.Close())

	scanner := bufio.NewScanner(r)
	require.True(t, scanner.Scan())

	var line map[string]any
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
	assert.Equal(t, "cache miss", line["message"])
	assert.Equal(t, "widget.Created:abc", line["key"])
	assert.Equal(t, float64(2), line["attempt"])
}

func TestErrorBelowLevelIsSuppressed(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "error")

	r, w, err := os.Pipe()
	require.NoError(t, err)
	l := NewWithWriter(w)

	l.Warn("should not appear")
	require.NoError(t, w.Close())

	scanner := bufio.NewScanner(r)
	assert.False(t, scanner.Scan())
}
