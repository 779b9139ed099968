package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vigil/core"
	"vigil/metrics"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const bundleCacheKeyPrefix = "bundle:"

// RedisCache provides a Redis-based JSON cache.
type RedisCache struct {
	client *redis.Client
	logger *zap.SugaredLogger
}

// NewRedisCache creates a new Redis cache instance.
func NewRedisCache(addr, password string, db, poolSize int, logger *zap.SugaredLogger) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
		PoolSize: poolSize,
	})

	return &RedisCache{
		client: client,
		logger: logger,
	}
}

// Ping tests the Redis connection.
func (rc *RedisCache) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (rc *RedisCache) Close() error {
	return rc.client.Close()
}

// Set stores a value in the cache with expiration.
func (rc *RedisCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		rc.logger.Errorf("Failed to marshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "marshal").Inc()
		return err
	}

	// 10MB cap so one oversized bundle cannot crowd out the cache
	const maxSize = 10 * 1024 * 1024
	if len(data) > maxSize {
		rc.logger.Warnf("Cache value for key %s exceeds size limit (%d bytes), rejecting", key, len(data))
		metrics.CacheErrors.WithLabelValues("redis", "size_limit").Inc()
		return fmt.Errorf("cache value size %d bytes exceeds maximum allowed size %d bytes", len(data), maxSize)
	}

	err = rc.client.Set(ctx, key, data, expiration).Err()
	if err != nil {
		metrics.CacheErrors.WithLabelValues("redis", "set").Inc()
	}
	return err
}

// Get retrieves a value from the cache. Returns false when the key is absent.
func (rc *RedisCache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := rc.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			metrics.CacheMisses.WithLabelValues("redis").Inc()
			return false, nil
		}
		rc.logger.Errorf("Failed to get cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "get").Inc()
		return false, err
	}

	if err := json.Unmarshal([]byte(data), dest); err != nil {
		rc.logger.Errorf("Failed to unmarshal cache value for key %s: %v", key, err)
		metrics.CacheErrors.WithLabelValues("redis", "unmarshal").Inc()
		return false, err
	}

	metrics.CacheHits.WithLabelValues("redis").Inc()
	return true, nil
}

// Delete removes a key from the cache.
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	return rc.client.Del(ctx, key).Err()
}

// CachedBundleStorage is a read-through cache over an evidence bundle store.
// Bundles are content-addressed and immutable, so cached entries can never
// go stale; the TTL only bounds memory.
type CachedBundleStorage struct {
	inner  EvidenceBundleStorageInterface
	cache  *RedisCache
	ttl    time.Duration
	logger *zap.SugaredLogger
}

// NewCachedBundleStorage wraps a bundle store with a Redis read-through cache.
func NewCachedBundleStorage(inner EvidenceBundleStorageInterface, cache *RedisCache, ttl time.Duration, logger *zap.SugaredLogger) *CachedBundleStorage {
	return &CachedBundleStorage{
		inner:  inner,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// PutEvidenceBundle writes through to the inner store and populates the
// cache on a successful first write.
func (c *CachedBundleStorage) PutEvidenceBundle(ctx context.Context, bundle *core.EvidenceBundle) (bool, error) {
	isNew, err := c.inner.PutEvidenceBundle(ctx, bundle)
	if err != nil {
		return false, err
	}

	if isNew {
		if cacheErr := c.cache.Set(ctx, bundleCacheKeyPrefix+bundle.EvidenceID, bundle, c.ttl); cacheErr != nil {
			c.logger.Warnw("Failed to cache evidence bundle", "evidence_id", bundle.EvidenceID, "error", cacheErr)
		}
	}

	return isNew, nil
}

// GetEvidenceBundle returns the cached bundle when present, falling back to
// the inner store and populating the cache on a miss. Cache failures degrade
// to the inner store rather than failing the read.
func (c *CachedBundleStorage) GetEvidenceBundle(ctx context.Context, evidenceID string) (*core.EvidenceBundle, error) {
	var cached core.EvidenceBundle
	found, err := c.cache.Get(ctx, bundleCacheKeyPrefix+evidenceID, &cached)
	if err == nil && found {
		return &cached, nil
	}
	if err != nil {
		c.logger.Warnw("Evidence bundle cache read failed, falling back to store", "evidence_id", evidenceID, "error", err)
	}

	bundle, err := c.inner.GetEvidenceBundle(ctx, evidenceID)
	if err != nil {
		return nil, err
	}

	if cacheErr := c.cache.Set(ctx, bundleCacheKeyPrefix+evidenceID, bundle, c.ttl); cacheErr != nil {
		c.logger.Warnw("Failed to cache evidence bundle", "evidence_id", evidenceID, "error", cacheErr)
	}

	return bundle, nil
}
