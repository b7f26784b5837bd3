package cache

import (
	"context"
	"sync"
	"time"
)

// Store caches raw response bodies of public lookups
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Item represents a cached item with expiration
type Item struct {
	Value      []byte
	Expiration int64
}

// Expired checks if the cache item has expired
func (item Item) Expired(now int64) bool {
	if item.Expiration == 0 {
		return false
	}
	return now > item.Expiration
}

// Options configures a MemoryStore
type Options struct {
	MaxItems        int
	CleanupInterval time.Duration
}

// MemoryStore is a thread-safe in-memory Store with expiration
type MemoryStore struct {
	items    map[string]Item
	mu       sync.RWMutex
	maxItems int
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a MemoryStore. A cleanup goroutine runs while
// CleanupInterval > 0; call Close to stop it.
func NewMemoryStore(opts Options) *MemoryStore {
	c := &MemoryStore{
		items:    make(map[string]Item),
		maxItems: opts.MaxItems,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	if opts.CleanupInterval > 0 {
		go c.startCleanupTimer(opts.CleanupInterval)
	}

	return c
}

// Set adds an item. ttl <= 0 means no expiration.
func (c *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var exp int64
	if ttl > 0 {
		exp = c.now().Add(ttl).UnixNano()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && c.maxItems > 0 && len(c.items) >= c.maxItems {
		c.evictOldest()
	}

	c.items[key] = Item{
		Value:      append([]byte(nil), value...),
		Expiration: exp,
	}
	return nil
}

// Get retrieves an unexpired item
func (c *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, found := c.items[key]
	if !found || item.Expired(c.now().UnixNano()) {
		return nil, false, nil
	}

	return append([]byte(nil), item.Value...), true, nil
}

// Delete removes an item
func (c *MemoryStore) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Count returns the number of items in the cache (including expired items)
func (c *MemoryStore) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.items)
}

// Close stops the cleanup goroutine
func (c *MemoryStore) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *MemoryStore) startCleanupTimer(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-c.stop:
			return
		}
	}
}

func (c *MemoryStore) deleteExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().UnixNano()
	for k, v := range c.items {
		if v.Expired(now) {
			delete(c.items, k)
		}
	}
}

// evictOldest removes the item closest to expiry; items without expiry go last
func (c *MemoryStore) evictOldest() {
	var oldestKey string
	var oldestTime int64
	found := false

	for k, v := range c.items {
		if v.Expiration == 0 {
			if !found {
				oldestKey, found = k, true
			}
			continue
		}
		if !found || oldestTime == 0 || v.Expiration < oldestTime {
			oldestKey = k
			oldestTime = v.Expiration
			found = true
		}
	}

	if found {
		delete(c.items, oldestKey)
	}
}
