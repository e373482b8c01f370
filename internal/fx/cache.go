package fx

import (
	"context"
	"strings"
	"sync"
	"time"
)

type cacheEntry struct {
	rate    float64
	fetched time.Time
}

// CachedProvider memoizes a RateProvider's answers for a bounded time and
// a bounded number of currency pairs. Failures are never cached.
type CachedProvider struct {
	next       RateProvider
	ttl        time.Duration
	maxEntries int

	mu      sync.Mutex
	entries map[string]cacheEntry

	nowFunc func() time.Time
}

// NewCachedProvider wraps next with a cache. A non-positive maxEntries means 256.
func NewCachedProvider(next RateProvider, ttl time.Duration, maxEntries int) *CachedProvider {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &CachedProvider{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]cacheEntry),
		nowFunc:    time.Now,
	}
}

// Rate returns a cached rate when fresh, otherwise asks the wrapped provider.
func (c *CachedProvider) Rate(ctx context.Context, source, target string) (float64, error) {
	key := strings.ToUpper(source) + "/" + strings.ToUpper(target)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.nowFunc().Sub(e.fetched) < c.ttl {
		c.mu.Unlock()
		return e.rate, nil
	}
	c.mu.Unlock()

	rate, err := c.next.Rate(ctx, source, target)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.nowFunc()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry{rate: rate, fetched: now}
	return rate, nil
}

// Invalidate drops every cached rate.
func (c *CachedProvider) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of cached pairs.
func (c *CachedProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the oldest one if still full.
func (c *CachedProvider) evictLocked(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if now.Sub(e.fetched) >= c.ttl {
			delete(c.entries, k)
			continue
		}
		if oldestKey == "" || e.fetched.Before(oldest) {
			oldestKey, oldest = k, e.fetched
		}
	}
	if len(c.entries) >= c.maxEntries && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}
