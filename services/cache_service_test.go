package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) now() time.Time {
	return c.current
}

func (c *fakeClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

func newTestCache(ttl time.Duration, maxSize int) (*CacheService, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC)}
	cache := NewCacheService(ttl, maxSize)
	cache.now = clock.now
	return cache, clock
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)

	cache.Set("records:all", "view")
	value, ok := cache.Get("records:all")
	assert.True(t, ok)
	assert.Equal(t, "view", value)

	clock.advance(61 * time.Second)
	_, ok = cache.Get("records:all")
	assert.False(t, ok)
	assert.Zero(t, cache.Size(), "expired entries are dropped on access")

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
}

func TestCacheNonPositiveTTLNeverExpires(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)

	cache.SetWithTTL("pinned", 1, 0)
	clock.advance(24 * time.Hour)

	_, ok := cache.Get("pinned")
	assert.True(t, ok)
}

func TestCacheEvictsWhenFull(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 2)

	cache.Set("a", 1)
	clock.advance(time.Second)
	cache.Set("b", 2)
	clock.advance(time.Second)
	cache.Set("c", 3)

	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Get("a")
	assert.False(t, ok, "the entry closest to expiry goes first")
	_, ok = cache.Get("c")
	assert.True(t, ok)

	cache.Set("b", 20)
	assert.Equal(t, 2, cache.Size(), "overwriting a key does not evict")
}

func TestCachePurgeExpired(t *testing.T) {
	cache, clock := newTestCache(time.Minute, 10)

	cache.Set("short", 1)
	cache.SetWithTTL("long", 2, time.Hour)
	cache.SetWithTTL("forever", 3, 0)
	clock.advance(2 * time.Minute)

	assert.Equal(t, 1, cache.PurgeExpired())
	assert.Equal(t, 2, cache.Size())
	assert.Zero(t, cache.PurgeExpired())
}

func TestCacheDeleteAndClear(t *testing.T) {
	cache, _ := newTestCache(time.Minute, 10)

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Delete("a")
	assert.Equal(t, 1, cache.Size())

	cache.Clear()
	assert.Zero(t, cache.Size())
}
