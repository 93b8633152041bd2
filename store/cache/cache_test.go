package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestCache(config Config) *Cache {
	c := New(config)
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	c.SetWithTTL("a", 1, 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	c := newTestCache(Config{})
	defer c.Close()

	c.Set("a", 1)
	c.Delete("a")

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCacheMaxItemsEvicts(t *testing.T) {
	evicted := make(map[string]any)
	c := newTestCache(Config{
		MaxItems: 2,
		OnEviction: func(key string, value any) {
			evicted[key] = value
		},
	})
	defer c.Close()

	c.SetWithTTL("a", 1, time.Minute)
	c.SetWithTTL("b", 2, 2*time.Minute)
	c.SetWithTTL("c", 3, 3*time.Minute)

	// The entry closest to expiry goes first.
	assert.Len(t, evicted, 1)
	assert.Equal(t, 1, evicted["a"])

	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestCacheOverwriteDoesNotEvict(t *testing.T) {
	var evictions int
	c := newTestCache(Config{
		MaxItems:   2,
		OnEviction: func(string, any) { evictions++ },
	})
	defer c.Close()

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 3)

	assert.Zero(t, evictions)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}
