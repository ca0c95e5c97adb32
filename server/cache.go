package server

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/d0rc/geo-locator/metrics"
	"github.com/d0rc/geo-locator/settings"
	"github.com/redis/go-redis/v9"
)

// ResultCache keeps serialized responses keyed by request hash.
type ResultCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(config *settings.CacheConfigurationSection) *RedisCache {
	return NewRedisCacheWithClient(redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	}), time.Duration(config.TTLSeconds)*time.Second)
}

func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.CacheMissesTotal.Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	metrics.CacheHitsTotal.Inc()
	return value, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) error {
	return c.client.Set(ctx, key, value, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// CacheKey is the namespaced SHA-256 of a request body.
func CacheKey(namespace string, body []byte) string {
	sum := sha256.Sum256(body)
	return "geo:" + namespace + ":" + hex.EncodeToString(sum[:])
}
