// Package cache is a small TTL map. The module uses it to remember
// recently delivered oplog timestamps for client-side redelivery
// deduplication, but it carries no oplog types on purpose.
package cache

import (
	"sync"
	"time"
)

const (
	NoExpiration      time.Duration = -1
	DefaultExpiration time.Duration = 0
)

type item struct {
	value      any
	expiration int64
}

func (it item) expired() bool {
	if it.expiration == 0 {
		return false
	}
	return time.Now().UnixNano() > it.expiration
}

type Cache struct {
	mu                sync.RWMutex
	items             map[string]item
	defaultExpiration time.Duration
	cleanupInterval   time.Duration
	stopCleanup       chan struct{}
}

// NewCache builds a cache with a default item TTL. With a non-zero
// cleanupInterval a janitor goroutine evicts expired items in the
// background; Close stops it.
func NewCache(defaultExpiration, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		items:             make(map[string]item),
		defaultExpiration: defaultExpiration,
		cleanupInterval:   cleanupInterval,
		stopCleanup:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop()
	}
	return c
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.DeleteExpired()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *Cache) Set(key string, value any, d time.Duration) {
	var exp int64
	if d == DefaultExpiration {
		d = c.defaultExpiration
	}
	if d > 0 {
		exp = time.Now().Add(d).UnixNano()
	}

	c.mu.Lock()
	c.items[key] = item{value: value, expiration: exp}
	c.mu.Unlock()
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	it, found := c.items[key]
	c.mu.RUnlock()

	if !found {
		return nil, false
	}
	if it.expired() {
		c.Delete(key)
		return nil, false
	}
	return it.value, true
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *Cache) DeleteExpired() {
	now := time.Now().UnixNano()
	c.mu.Lock()
	for k, it := range c.items {
		if it.expiration > 0 && now > it.expiration {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}

// Close stops the janitor. The cache itself stays usable.
func (c *Cache) Close() error {
	if c.cleanupInterval > 0 {
		close(c.stopCleanup)
	}
	return nil
}
