package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/foundry/pkg/tenancy"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, config RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.Password != "" {
		opts.Password = config.Password
	}
	if config.DB > 0 {
		opts.DB = config.DB
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

// RedisRoleCache stores membership roles in Redis so all API instances share them
type RedisRoleCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisRoleCache creates a Redis role cache with the given entry TTL
func NewRedisRoleCache(client *redis.Client, ttl time.Duration) *RedisRoleCache {
	return &RedisRoleCache{
		client: client,
		prefix: "foundry:role:",
		ttl:    ttl,
	}
}

func (c *RedisRoleCache) key(userID, orgID string) string {
	return c.prefix + orgID + ":" + userID
}

// Get returns the cached role or ErrCacheMiss
func (c *RedisRoleCache) Get(ctx context.Context, userID, orgID string) (tenancy.Role, error) {
	if err := validKey(userID, orgID); err != nil {
		return "", err
	}

	val, err := c.client.Get(ctx, c.key(userID, orgID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	} else if err != nil {
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	role, err := tenancy.ParseRole(val)
	if err != nil {
		// Drop corrupt entries so the next lookup repopulates them
		c.client.Del(ctx, c.key(userID, orgID))
		return "", ErrCacheMiss
	}
	return role, nil
}

// Set caches role for the configured TTL
func (c *RedisRoleCache) Set(ctx context.Context, userID, orgID string, role tenancy.Role) error {
	if err := validKey(userID, orgID); err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(userID, orgID), role.String(), c.ttl).Err()
}

// Invalidate drops one membership
func (c *RedisRoleCache) Invalidate(ctx context.Context, userID, orgID string) error {
	return c.client.Del(ctx, c.key(userID, orgID)).Err()
}

// InvalidateOrg drops every membership of orgID using SCAN
func (c *RedisRoleCache) InvalidateOrg(ctx context.Context, orgID string) error {
	pattern := c.prefix + orgID + ":*"
	iter := c.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete key %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan failed for pattern %s: %w", pattern, err)
	}
	return nil
}
