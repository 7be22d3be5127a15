package keyset

import (
	"context"
	"errors"
	"sync"
	"time"

	"receiptd/internal/domain"
	"receiptd/internal/usecase"
)

var _ usecase.KeySetCache = (*MemoryStore)(nil)

// MemoryStore keeps one Cache per source URL.
type MemoryStore struct {
	ttl     time.Duration
	now     func() time.Time
	maxKeys int

	mu     sync.Mutex
	caches map[string]*Cache
}

type MemoryStoreConfig struct {
	TTL     time.Duration
	Now     func() time.Time
	MaxKeys int
}

func NewMemoryStore(cfg MemoryStoreConfig) *MemoryStore {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MaxKeys <= 0 {
		cfg.MaxKeys = 1024
	}
	return &MemoryStore{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		maxKeys: cfg.MaxKeys,
		caches:  make(map[string]*Cache),
	}
}

func (m *MemoryStore) Get(_ context.Context, url string) (domain.KeySet, bool, error) {
	m.mu.Lock()
	cache, ok := m.caches[url]
	m.mu.Unlock()
	if !ok {
		return domain.KeySet{}, false, nil
	}
	ks, fresh := cache.GetIfFresh()
	return ks, fresh, nil
}

func (m *MemoryStore) Put(_ context.Context, url string, ks domain.KeySet) error {
	m.mu.Lock()
	cache, ok := m.caches[url]
	if !ok {
		if len(m.caches) >= m.maxKeys {
			m.gc()
		}
		if len(m.caches) >= m.maxKeys {
			m.mu.Unlock()
			return errors.New("key set cache capacity exceeded")
		}
		cache = NewCache(m.ttl, m.now)
		m.caches[url] = cache
	}
	m.mu.Unlock()
	cache.Set(ks)
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, url string) error {
	m.mu.Lock()
	cache, ok := m.caches[url]
	delete(m.caches, url)
	m.mu.Unlock()
	if ok {
		cache.Clear()
	}
	return nil
}

// gc drops entries that are no longer fresh. Caller holds m.mu.
func (m *MemoryStore) gc() {
	for url, cache := range m.caches {
		if _, fresh := cache.GetIfFresh(); !fresh {
			delete(m.caches, url)
		}
	}
}
