package main

import (
	"receiptd/internal/config"
	"receiptd/internal/infra/db"
	"receiptd/internal/infra/keyset"
	"receiptd/internal/usecase"
)

// openKeySets builds a key set source for a single CLI invocation. The cache
// is process-local; the registry is attached only when a database is
// configured. The returned close func releases the store.
func openKeySets(cfg *config.Config, needRegistry bool) (*usecase.KeySetSource, func(), error) {
	source := &usecase.KeySetSource{
		Cache: keyset.NewMemoryStore(keyset.MemoryStoreConfig{TTL: cfg.KeySetTTL}),
		Fetcher: keyset.NewHTTPFetcher(keyset.FetcherConfig{
			Timeout:      cfg.KeySetFetchTimeout,
			Attempts:     cfg.KeySetFetchAttempts,
			MaxBodyBytes: cfg.KeySetMaxBytes,
		}),
	}
	if !needRegistry {
		return source, func() {}, nil
	}
	store, err := db.NewStore(*cfg)
	if err != nil {
		return nil, nil, err
	}
	if store.Enabled() {
		source.Registry = db.NewKeySetRepository(store.DB)
	}
	return source, func() { _ = store.Close() }, nil
}
