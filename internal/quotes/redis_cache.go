package quotes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketHarvest/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
)

// RedisCache stores series as JSON strings with a native TTL.
type RedisCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisCache connects and pings the server.
func NewRedisCache(addr, password string, db int, logger *zap.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisCache{client: client, logger: logger.Named("redis-cache")}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (*model.PriceSeries, bool) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var s model.PriceSeries
	if err := json.Unmarshal(data, &s); err != nil {
		c.logger.Warn("discarding undecodable cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &s, true
}

func (c *RedisCache) Set(ctx context.Context, key string, s *model.PriceSeries, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, ttl).Err()
}

// Close releases the connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
