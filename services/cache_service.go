package services

import (
	"sync"
	"time"
)

// CacheEntry represents a cached item with expiration
type CacheEntry struct {
	Data      interface{}
	ExpiresAt time.Time // zero means the entry never expires
}

// IsExpired checks if the cache entry has expired
func (ce *CacheEntry) IsExpired(now time.Time) bool {
	return !ce.ExpiresAt.IsZero() && now.After(ce.ExpiresAt)
}

// CacheService is a bounded in-memory TTL cache.
// Expired entries are evicted lazily on access, so no background goroutine is needed.
type CacheService struct {
	cache      map[string]*CacheEntry
	mutex      sync.Mutex
	defaultTTL time.Duration
	maxSize    int
	hits       int64
	misses     int64
	now        func() time.Time
}

// NewCacheService creates a cache with the given default TTL and size bound
func NewCacheService(defaultTTL time.Duration, maxSize int) *CacheService {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &CacheService{
		cache:      make(map[string]*CacheEntry),
		defaultTTL: defaultTTL,
		maxSize:    maxSize,
		now:        time.Now,
	}
}

// Get retrieves a value from cache
func (cs *CacheService) Get(key string) (interface{}, bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	entry, exists := cs.cache[key]
	if !exists {
		cs.misses++
		return nil, false
	}
	if entry.IsExpired(cs.now()) {
		delete(cs.cache, key)
		cs.misses++
		return nil, false
	}

	cs.hits++
	return entry.Data, true
}

// Set stores a value in cache with default TTL
func (cs *CacheService) Set(key string, value interface{}) {
	cs.SetWithTTL(key, value, cs.defaultTTL)
}

// SetWithTTL stores a value in cache with custom TTL; ttl <= 0 never expires
func (cs *CacheService) SetWithTTL(key string, value interface{}, ttl time.Duration) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	if _, exists := cs.cache[key]; !exists && len(cs.cache) >= cs.maxSize {
		cs.evictOldest()
	}

	entry := &CacheEntry{Data: value}
	if ttl > 0 {
		entry.ExpiresAt = cs.now().Add(ttl)
	}
	cs.cache[key] = entry
}

// evictOldest drops expired entries, or else the one closest to expiry
func (cs *CacheService) evictOldest() {
	now := cs.now()
	var oldestKey, anyKey string
	var oldestTime time.Time

	for key, entry := range cs.cache {
		if entry.IsExpired(now) {
			delete(cs.cache, key)
			continue
		}
		anyKey = key
		if entry.ExpiresAt.IsZero() {
			continue
		}
		if oldestKey == "" || entry.ExpiresAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.ExpiresAt
		}
	}

	if len(cs.cache) < cs.maxSize {
		return
	}
	if oldestKey == "" {
		oldestKey = anyKey
	}
	delete(cs.cache, oldestKey)
}

// Delete removes a value from cache
func (cs *CacheService) Delete(key string) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	delete(cs.cache, key)
}

// Clear removes all values from cache
func (cs *CacheService) Clear() {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.cache = make(map[string]*CacheEntry)
}

// PurgeExpired drops every expired entry and returns how many were removed
func (cs *CacheService) PurgeExpired() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	now := cs.now()
	removed := 0
	for key, entry := range cs.cache {
		if entry.IsExpired(now) {
			delete(cs.cache, key)
			removed++
		}
	}
	return removed
}

// Size returns the number of items in cache
func (cs *CacheService) Size() int {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	return len(cs.cache)
}

// Stats returns hit/miss counters for the metrics endpoint
func (cs *CacheService) Stats() map[string]interface{} {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	return map[string]interface{}{
		"size":        len(cs.cache),
		"max_size":    cs.maxSize,
		"hits":        cs.hits,
		"misses":      cs.misses,
		"default_ttl": cs.defaultTTL.String(),
	}
}
