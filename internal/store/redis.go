package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"musicstreamer/pkg/stream"
)

const (
	// DefaultKeyPrefix namespaces stream entries in a shared Redis.
	DefaultKeyPrefix = "stream:"
	// redisPingTimeout bounds the connectivity check on startup.
	redisPingTimeout = 5 * time.Second
)

// RedisCache stores resolved streams in Redis using native key expiry.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisConfig holds the connection settings for NewRedisClient.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisCache wraps client. An empty prefix uses DefaultKeyPrefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Get returns the cached result for key. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, key string) (*stream.StreamResult, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var result stream.StreamResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("decode cached stream %s: %w", key, err)
	}
	return &result, true, nil
}

// Put stores result under key for ttl. A non-positive ttl stores nothing.
func (c *RedisCache) Put(ctx context.Context, key string, result *stream.StreamResult, ttl time.Duration) error {
	if ttl <= 0 || result == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode stream %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}
