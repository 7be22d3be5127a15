package usecase

import (
	"context"

	"receiptd/internal/domain"
)

type CryptoService interface {
	Canonicalize(raw []byte) ([]byte, error)
	ResolveKey(kid string, ks domain.KeySet) (domain.Key, bool)
	AlgorithmMatchesKey(alg string, key domain.Key) bool
	VerifySignature(alg string, key domain.Key, message, signature []byte) (bool, error)
	EncodeBase64URL(b []byte) string
	DecodeBase64URL(s string) ([]byte, error)
	SHA256(data []byte) []byte
}

// KeySetCache holds fetched key sets per source URL. A miss or a stale entry
// reports ok=false.
type KeySetCache interface {
	Get(ctx context.Context, url string) (domain.KeySet, bool, error)
	Put(ctx context.Context, url string, ks domain.KeySet) error
	Clear(ctx context.Context, url string) error
}

type KeySetFetcher interface {
	Fetch(ctx context.Context, url string) (domain.KeySet, error)
}

type KeySetRepository interface {
	Put(ctx context.Context, rec domain.StoredKeySet) (domain.StoredKeySet, error)
	Get(ctx context.Context, name string) (*domain.StoredKeySet, error)
	List(ctx context.Context) ([]domain.StoredKeySet, error)
}

type KeySetMetrics interface {
	ObserveCache(hit bool)
	ObserveFetch(err error)
}
