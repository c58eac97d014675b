package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheGetMiss(t *testing.T) {
	c := NewCache()
	_, _, ok, err := c.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCachePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	require.NoError(t, c.Put(ctx, "k", []byte("v1")))
	value, cachedAt, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(value))
	assert.False(t, cachedAt.IsZero())
}

func TestCachePutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := NewCache()

	require.NoError(t, c.Put(ctx, "k", []byte("v1")))
	first, _, _, _ := c.Get(ctx, "k")
	require.NoError(t, c.Put(ctx, "k", []byte("v2")))
	second, _, _, _ := c.Get(ctx, "k")

	assert.Equal(t, "v1", string(first))
	assert.Equal(t, "v2", string(second))
}

func TestCacheGetReturnsDefensiveCopy(t *testing.T) {
	ctx := context.Background()
	c := NewCache()
	require.NoError(t, c.Put(ctx, "k", []byte("v1")))

	value, _, _, _ := c.Get(ctx, "k")
	value[0] = 'X'

	again, _, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "v1", string(again))
}
