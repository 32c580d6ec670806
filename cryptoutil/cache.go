package cryptoutil

import (
	"container/list"
	"sync"
)

// DecryptCache is a bounded LRU of ciphertext -> plaintext used when
// formatting audit rows, where the same encrypted IP or fingerprint is
// decrypted repeatedly. Eviction is strict LRU; the cache never grows past
// its capacity regardless of access pattern.
type DecryptCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key   string
	value string
}

// NewDecryptCache creates a cache holding at most capacity entries.
// A capacity <= 0 disables caching entirely.
func NewDecryptCache(capacity int) *DecryptCache {
	return &DecryptCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached plaintext for ciphertext, if present.
func (c *DecryptCache) Get(ciphertext []byte) (string, bool) {
	if c == nil || c.capacity <= 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[string(ciphertext)]
	if !ok {
		return "", false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).value, true
}

// Put stores a decryption result, evicting the least recently used entry
// when the cache is full.
func (c *DecryptCache) Put(ciphertext []byte, plaintext string) {
	if c == nil || c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := string(ciphertext)
	if el, ok := c.entries[key]; ok {
		c.order.MoveToFront(el)
		el.Value.(*cacheEntry).value = plaintext
		return
	}
	el := c.order.PushFront(&cacheEntry{key: key, value: plaintext})
	c.entries[key] = el
	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

// Len reports the current number of cached entries.
func (c *DecryptCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
