package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/docshare-api/pkg/errors"
)

// CacheRepository provides helpers around Redis interactions for caching share lookups.
type CacheRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCacheRepository constructs a cache repository.
func NewCacheRepository(client *redis.Client, logger *zap.Logger) *CacheRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheRepository{client: client, logger: logger}
}

// Get retrieves and unmarshals the cached value into the provided destination.
func (r *CacheRepository) Get(ctx context.Context, key string, dest interface{}) error {
	if r.client == nil {
		return appErrors.ErrCacheMiss
	}

	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return appErrors.ErrCacheMiss
		}
		return fmt.Errorf("redis get %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}

	return nil
}

// Set marshals the provided value and stores it with the given TTL.
func (r *CacheRepository) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}

	if err := r.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}

	return nil
}

// Delete removes the given keys.
func (r *CacheRepository) Delete(ctx context.Context, keys ...string) error {
	if r.client == nil || len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete %v: %w", keys, err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *CacheRepository) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

type lruEntry struct {
	payload   []byte
	expiresAt time.Time
}

// LRUCacheRepository is the in-process fallback used when Redis is disabled.
// Values are stored as JSON so callers never share mutable state.
type LRUCacheRepository struct {
	entries *expirable.LRU[string, lruEntry]
	maxTTL  time.Duration
	now     func() time.Time
}

// NewLRUCacheRepository builds a bounded cache whose entries never outlive maxTTL.
func NewLRUCacheRepository(size int, maxTTL time.Duration) *LRUCacheRepository {
	if size <= 0 {
		size = 1024
	}
	if maxTTL <= 0 {
		maxTTL = time.Minute
	}
	return &LRUCacheRepository{
		entries: expirable.NewLRU[string, lruEntry](size, nil, maxTTL),
		maxTTL:  maxTTL,
		now:     time.Now,
	}
}

// Get unmarshals a live entry into dest or returns ErrCacheMiss.
func (r *LRUCacheRepository) Get(_ context.Context, key string, dest interface{}) error {
	entry, ok := r.entries.Get(key)
	if !ok {
		return appErrors.ErrCacheMiss
	}
	if !r.now().Before(entry.expiresAt) {
		r.entries.Remove(key)
		return appErrors.ErrCacheMiss
	}
	if err := json.Unmarshal(entry.payload, dest); err != nil {
		return fmt.Errorf("unmarshal cache value for %s: %w", key, err)
	}
	return nil
}

// Set stores value for ttl, capped at the repository's maximum TTL.
func (r *LRUCacheRepository) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if ttl <= 0 || ttl > r.maxTTL {
		ttl = r.maxTTL
	}
	r.entries.Add(key, lruEntry{payload: payload, expiresAt: r.now().Add(ttl)})
	return nil
}

// Delete removes the given keys.
func (r *LRUCacheRepository) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		r.entries.Remove(key)
	}
	return nil
}

// Close purges all entries.
func (r *LRUCacheRepository) Close() error {
	r.entries.Purge()
	return nil
}
