package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"receiptd/internal/domain"
	"receiptd/internal/logger"
)

// KeySetSource supplies key sets to the verifier. Remote sets go through the
// cache and are fetched at most once per URL at a time; named sets come from
// the registry.
type KeySetSource struct {
	Cache    KeySetCache
	Fetcher  KeySetFetcher
	Registry KeySetRepository
	Metrics  KeySetMetrics
	Now      func() time.Time

	group singleflight.Group
}

func (s *KeySetSource) FromURL(ctx context.Context, url string) (domain.KeySet, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return domain.KeySet{}, fmt.Errorf("%w: key set url is required", domain.ErrInvalidFormat)
	}
	if s.Cache != nil {
		ks, ok, err := s.Cache.Get(ctx, url)
		if err != nil {
			logger.Warn("key set cache read failed", "url", url, "error", err)
		}
		s.observeCache(err == nil && ok)
		if err == nil && ok {
			return ks, nil
		}
	}
	return s.fetch(ctx, url)
}

// Refresh drops any cached copy of url and fetches it again.
func (s *KeySetSource) Refresh(ctx context.Context, url string) (domain.KeySet, error) {
	if s.Cache != nil {
		if err := s.Cache.Clear(ctx, url); err != nil {
			logger.Warn("key set cache clear failed", "url", url, "error", err)
		}
	}
	return s.fetch(ctx, strings.TrimSpace(url))
}

func (s *KeySetSource) fetch(ctx context.Context, url string) (domain.KeySet, error) {
	if s.Fetcher == nil {
		return domain.KeySet{}, fmt.Errorf("%w: no key set fetcher configured", domain.ErrNetwork)
	}
	// The shared fetch outlives any single caller; each attempt is still
	// bounded by the fetcher's own timeout.
	fetchCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(url, func() (any, error) {
		ks, err := s.Fetcher.Fetch(fetchCtx, url)
		if err == nil {
			err = domain.ValidateKeySet(ks)
		}
		s.observeFetch(err)
		if err != nil {
			logger.Warn("key set fetch failed", "url", url, "error", err)
			return domain.KeySet{}, err
		}
		logger.Info("key set fetched", "url", url, "keys", len(ks.Keys))
		if s.Cache != nil {
			if err := s.Cache.Put(ctx, url, ks); err != nil {
				logger.Warn("key set cache write failed", "url", url, "error", err)
			}
		}
		return ks, nil
	})
	select {
	case <-ctx.Done():
		return domain.KeySet{}, fmt.Errorf("%w: %v", domain.ErrNetwork, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return domain.KeySet{}, res.Err
		}
		if res.Shared {
			logger.Debug("key set fetch shared", "url", url)
		}
		return res.Val.(domain.KeySet), nil
	}
}

func (s *KeySetSource) FromRegistry(ctx context.Context, name string) (domain.KeySet, error) {
	rec, err := s.Lookup(ctx, name)
	if err != nil {
		return domain.KeySet{}, err
	}
	return rec.Keys, nil
}

func (s *KeySetSource) Lookup(ctx context.Context, name string) (*domain.StoredKeySet, error) {
	if s.Registry == nil {
		return nil, domain.ErrRegistryUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: key set name is required", domain.ErrInvalidFormat)
	}
	return s.Registry.Get(ctx, name)
}

// List returns every pinned key set ordered by name.
func (s *KeySetSource) List(ctx context.Context) ([]domain.StoredKeySet, error) {
	if s.Registry == nil {
		return nil, domain.ErrRegistryUnavailable
	}
	return s.Registry.List(ctx)
}

// Import validates ks and pins it in the registry under name, replacing any
// previous set with that name.
func (s *KeySetSource) Import(ctx context.Context, name, sourceURL string, ks domain.KeySet) (domain.StoredKeySet, error) {
	if s.Registry == nil {
		return domain.StoredKeySet{}, domain.ErrRegistryUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.StoredKeySet{}, fmt.Errorf("%w: key set name is required", domain.ErrInvalidFormat)
	}
	if err := domain.ValidateKeySet(ks); err != nil {
		return domain.StoredKeySet{}, err
	}
	rec, err := s.Registry.Put(ctx, domain.StoredKeySet{
		Name:      name,
		SourceURL: sourceURL,
		Keys:      ks,
		FetchedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.StoredKeySet{}, err
	}
	logger.Info("key set imported", "name", name, "source_url", sourceURL, "keys", len(ks.Keys))
	return rec, nil
}

// ImportURL fetches url, bypassing the cache, and pins the result under name.
func (s *KeySetSource) ImportURL(ctx context.Context, name, url string) (domain.StoredKeySet, error) {
	ks, err := s.Refresh(ctx, url)
	if err != nil {
		return domain.StoredKeySet{}, err
	}
	return s.Import(ctx, name, url, ks)
}

func (s *KeySetSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *KeySetSource) observeCache(hit bool) {
	if s.Metrics != nil {
		s.Metrics.ObserveCache(hit)
	}
}

func (s *KeySetSource) observeFetch(err error) {
	if s.Metrics != nil {
		s.Metrics.ObserveFetch(err)
	}
}
