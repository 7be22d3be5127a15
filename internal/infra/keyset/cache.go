package keyset

import (
	"sync"
	"time"

	"receiptd/internal/domain"
)

const DefaultTTL = 5 * time.Minute

type cachedKeySet struct {
	keySet    domain.KeySet
	fetchedAt time.Time
}

// Cache holds at most one key set. Staleness is evaluated on read; nothing
// runs in the background.
type Cache struct {
	ttl time.Duration
	now func() time.Time

	mu    sync.RWMutex
	entry *cachedKeySet
}

func NewCache(ttl time.Duration, now func() time.Time) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Cache{ttl: ttl, now: now}
}

// GetIfFresh returns the cached key set while now - fetchedAt < ttl.
func (c *Cache) GetIfFresh() (domain.KeySet, bool) {
	c.mu.RLock()
	entry := c.entry
	c.mu.RUnlock()
	if entry == nil {
		return domain.KeySet{}, false
	}
	if c.now().Sub(entry.fetchedAt) >= c.ttl {
		return domain.KeySet{}, false
	}
	return copyKeySet(entry.keySet), true
}

func (c *Cache) Set(ks domain.KeySet) {
	entry := &cachedKeySet{keySet: copyKeySet(ks), fetchedAt: c.now()}
	c.mu.Lock()
	c.entry = entry
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entry = nil
	c.mu.Unlock()
}

func copyKeySet(ks domain.KeySet) domain.KeySet {
	if ks.Keys == nil {
		return domain.KeySet{}
	}
	keys := make([]domain.Key, len(ks.Keys))
	copy(keys, ks.Keys)
	return domain.KeySet{Keys: keys}
}
