package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/travoya/travoya/config"
)

// RedisCache backs the GDS token cache and the search-result memoization.
// Search entries live for searchTTL and are never invalidated early;
// staleness up to the TTL is accepted.
type RedisCache struct {
	client    *redis.Client
	searchTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, searchTTL time.Duration) *RedisCache {
	return &RedisCache{
		client:    redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}),
		searchTTL: searchTTL,
	}
}

// GetSearch returns the cached payload for key, or nil on a miss.
func (c *RedisCache) GetSearch(ctx context.Context, key string) ([]byte, error) {
	data, err := c.client.Get(ctx, searchKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (c *RedisCache) SetSearch(ctx context.Context, key string, payload []byte) error {
	return c.client.Set(ctx, searchKey(key), payload, c.searchTTL).Err()
}

// GetToken returns the cached GDS bearer token, or "" on a miss.
func (c *RedisCache) GetToken(ctx context.Context) (string, error) {
	token, err := c.client.Get(ctx, tokenKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", err
	}
	return token, nil
}

func (c *RedisCache) SetToken(ctx context.Context, token string, ttl time.Duration) error {
	return c.client.Set(ctx, tokenKey(), token, ttl).Err()
}

// SearchKey builds the deterministic cache key from the query parameters
// that affect results.
func SearchKey(kind string, params ...string) string {
	return kind + ":" + strings.Join(params, "|")
}

func searchKey(key string) string {
	return fmt.Sprintf("cache:search:%s", key)
}

func tokenKey() string {
	return "cache:gds:token"
}
