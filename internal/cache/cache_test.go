package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomeshelf/playback/internal/logger"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache[string, int](logger.Get())

	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache[string, string](logger.Get())

	c.Set("short", "value", 10*time.Millisecond)
	v, ok := c.Get("short")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("short")
	assert.False(t, ok)
}

func TestMemoryCacheDeleteClear(t *testing.T) {
	c := NewMemoryCache[string, int](logger.Get())

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Clear()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestWithTTL(t *testing.T) {
	c := WithTTL(NewMemoryCache[string, int](logger.Get()), 10*time.Millisecond)

	// The wrapper ignores the per-call TTL
	c.Set("a", 1, time.Hour)

	_, ok := c.Get("a")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
}
