package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-realtime-chat/internal/config"
	"github.com/tbourn/go-realtime-chat/internal/domain"
)

// RedisUserCache keeps user summaries as JSON under "<prefix>:<id>".
type RedisUserCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisUserCache connects and pings Redis.
func NewRedisUserCache(cfg config.CacheConfig, prefix string) (*RedisUserCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.UserTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisUserCache{client: client, prefix: prefix, ttl: ttl}, nil
}

// New returns a Redis cache when an address is configured and Noop otherwise.
func New(cfg config.CacheConfig) (UserCache, error) {
	if cfg.RedisAddr == "" {
		return Noop{}, nil
	}
	c, err := NewRedisUserCache(cfg, "chat:user")
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RedisUserCache) key(id string) string { return c.prefix + ":" + id }

func (c *RedisUserCache) Get(ctx context.Context, id string) (*domain.UserSummary, error) {
	data, err := c.client.Get(ctx, c.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var u domain.UserSummary
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &u, nil
}

func (c *RedisUserCache) Set(ctx context.Context, u domain.UserSummary) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.key(u.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisUserCache) Invalidate(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.key(id)).Err()
}

func (c *RedisUserCache) Close() error {
	return c.client.Close()
}
