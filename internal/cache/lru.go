package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// LRUStore is an in-process Store with per-entry TTL and size-based eviction.
// It backs single-process deployments and tests; multi-process setups use RedisStore.
type LRUStore struct {
	mu      sync.Mutex
	maxSize int
	items   map[string]*list.Element
	lru     *list.List
	now     func() time.Time
}

type cacheItem struct {
	key       string
	data      []byte
	expiresAt time.Time // zero means no expiry
}

var _ Store = (*LRUStore)(nil)

// NewLRUStore creates a new LRU store holding at most maxSize entries.
func NewLRUStore(maxSize int) *LRUStore {
	return &LRUStore{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
		now:     time.Now,
	}
}

func (c *LRUStore) expired(item *cacheItem, now time.Time) bool {
	return !item.expiresAt.IsZero() && now.After(item.expiresAt)
}

// Get retrieves a value from the cache
func (c *LRUStore) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		return nil, ErrNotFound
	}

	item := elem.Value.(*cacheItem)
	if c.expired(item, c.now()) {
		c.removeElement(elem)
		return nil, ErrNotFound
	}

	c.lru.MoveToFront(elem)
	out := make([]byte, len(item.data))
	copy(out, item.data)
	return out, nil
}

// Set stores a value in the cache
func (c *LRUStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(key, value, ttl)
	return nil
}

// SetNX stores the value only if no live entry exists for key.
func (c *LRUStore) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		if !c.expired(elem.Value.(*cacheItem), c.now()) {
			return false, nil
		}
		c.removeElement(elem)
	}
	c.set(key, value, ttl)
	return true, nil
}

func (c *LRUStore) set(key string, value []byte, ttl time.Duration) {
	data := make([]byte, len(value))
	copy(data, value)
	item := &cacheItem{key: key, data: data}
	if ttl > 0 {
		item.expiresAt = c.now().Add(ttl)
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.maxSize > 0 && c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Delete removes keys from the cache
func (c *LRUStore) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		if elem, exists := c.items[key]; exists {
			c.removeElement(elem)
		}
	}
	return nil
}

// DeletePrefix removes every entry whose key starts with prefix.
func (c *LRUStore) DeletePrefix(_ context.Context, prefix string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed, nil
}

func (c *LRUStore) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem)
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

// CleanExpired removes all expired entries and returns count of removed items
func (c *LRUStore) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var toRemove []*list.Element
	for elem := c.lru.Front(); elem != nil; elem = elem.Next() {
		if c.expired(elem.Value.(*cacheItem), now) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		c.removeElement(elem)
	}
	return len(toRemove)
}

// Size returns the current number of items in the cache
func (c *LRUStore) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUStore) Ping(context.Context) error { return nil }

func (c *LRUStore) Close() error { return nil }
