package cache

import (
	"sync"
	"time"

	"github.com/snipetrade/snipetrade/internal/domain"
)

// TTL is a thread-safe expiring map used for scan-local candle reuse.
// Expired entries are purged lazily on Get; a background sweep can be
// started for long-lived caches.
type TTL[V any] struct {
	mu         sync.RWMutex
	entries    map[string]ttlEntry[V]
	defaultTTL time.Duration
	stats      ttlStats

	// Cleanup
	stopCh   chan struct{}
	stopOnce sync.Once

	// now is swapped in tests.
	now func() time.Time
}

type ttlEntry[V any] struct {
	value   V
	expires time.Time
}

type ttlStats struct {
	hits        int64
	misses      int64
	cleanupRuns int64
}

// NewTTL creates a cache whose entries live for defaultTTL unless Set
// overrides it. A non-positive defaultTTL is rejected.
func NewTTL[V any](defaultTTL time.Duration) (*TTL[V], error) {
	if defaultTTL <= 0 {
		return nil, domain.E(domain.KindConfig, "cache ttl must be greater than zero")
	}
	return &TTL[V]{
		entries:    make(map[string]ttlEntry[V]),
		defaultTTL: defaultTTL,
		stopCh:     make(chan struct{}),
		now:        time.Now,
	}, nil
}

// Get returns the cached value if it has not expired.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.stats.misses++
		return zero, false
	}

	if !entry.expires.After(c.now()) {
		delete(c.entries, key)
		c.stats.misses++
		return zero, false
	}

	c.stats.hits++
	return entry.value, true
}

// Set stores value under key for the default TTL.
func (c *TTL[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores value under key for an explicit TTL. Non-positive TTLs are
// ignored rather than poisoning the cache with immortal entries.
func (c *TTL[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = ttlEntry[V]{value: value, expires: c.now().Add(ttl)}
}

// Pop removes and returns the cached value if present.
func (c *TTL[V]) Pop(key string) (V, bool) {
	var zero V

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return zero, false
	}
	delete(c.entries, key)

	if !entry.expires.After(c.now()) {
		return zero, false
	}
	return entry.value, true
}

// Clear removes all entries.
func (c *TTL[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]ttlEntry[V])
	c.stats = ttlStats{}
}

// Len counts live entries.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	n := 0
	now := c.now()
	for _, entry := range c.entries {
		if entry.expires.After(now) {
			n++
		}
	}
	return n
}

// Stats reports hit/miss counts since the last Clear.
func (c *TTL[V]) Stats() (hits, misses int64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats.hits, c.stats.misses
}

// StartCleanup sweeps expired entries every interval until Stop is called.
func (c *TTL[V]) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.removeExpired()
			}
		}
	}()
}

// Stop terminates the cleanup goroutine if one is running.
func (c *TTL[V]) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *TTL[V]) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.entries {
		if !entry.expires.After(now) {
			delete(c.entries, key)
		}
	}
	c.stats.cleanupRuns++
}
