package keyset

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"receiptd/internal/domain"
	"receiptd/internal/usecase"
)

var _ usecase.KeySetCache = (*RedisStore)(nil)

const redisKeyPrefix = "receiptd:keyset:"

// RedisStore shares fetched key sets between replicas. Each entry is written
// with a single SET carrying the TTL, so readers see either the old or the
// new set.
type RedisStore struct {
	client redis.Cmdable
	ttl    time.Duration
	now    func() time.Time
}

type redisEntry struct {
	FetchedAt time.Time     `json:"fetched_at"`
	KeySet    domain.KeySet `json:"key_set"`
}

func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(client, ttl, nil), nil
}

func NewRedisStoreWithClient(client redis.Cmdable, ttl time.Duration, now func() time.Time) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{client: client, ttl: ttl, now: now}
}

func (r *RedisStore) Get(ctx context.Context, url string) (domain.KeySet, bool, error) {
	data, err := r.client.Get(ctx, redisKey(url)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.KeySet{}, false, nil
	}
	if err != nil {
		return domain.KeySet{}, false, fmt.Errorf("redis get key set: %w", err)
	}
	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return domain.KeySet{}, false, fmt.Errorf("decode cached key set: %w", err)
	}
	if r.now().Sub(entry.FetchedAt) >= r.ttl {
		return domain.KeySet{}, false, nil
	}
	return entry.KeySet, true, nil
}

func (r *RedisStore) Put(ctx context.Context, url string, ks domain.KeySet) error {
	data, err := json.Marshal(redisEntry{FetchedAt: r.now().UTC(), KeySet: ks})
	if err != nil {
		return fmt.Errorf("encode key set: %w", err)
	}
	if err := r.client.Set(ctx, redisKey(url), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set key set: %w", err)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, url string) error {
	if err := r.client.Del(ctx, redisKey(url)).Err(); err != nil {
		return fmt.Errorf("redis del key set: %w", err)
	}
	return nil
}

func redisKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return redisKeyPrefix + hex.EncodeToString(sum[:])
}
