package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/orthodesk/orthodesk/authz"
	"github.com/orthodesk/orthodesk/internal/metrics"
)

const (
	denylistKeyPrefix = "auth:denylist:"
	roleCatalogKey    = "authz:roles:catalog"
)

// NewRedisClient parses redisURL and checks the connection
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// TokenDenylist records revoked token IDs
type TokenDenylist interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RedisTokenDenylist keeps revoked jtis in Redis until their token expires
type RedisTokenDenylist struct {
	client *redis.Client
}

func NewRedisTokenDenylist(client *redis.Client) *RedisTokenDenylist {
	return &RedisTokenDenylist{client: client}
}

// Revoke stores tokenID until the given expiry. Already expired tokens are ignored.
func (d *RedisTokenDenylist) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	if tokenID == "" {
		return fmt.Errorf("%w: token has no id", authz.ErrInvalidInput)
	}
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := d.client.Set(ctx, denylistKeyPrefix+tokenID, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (d *RedisTokenDenylist) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := d.client.Exists(ctx, denylistKeyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists failed: %w", err)
	}
	return n > 0, nil
}

// RoleCache caches the role catalog listing. Principals are never read from it.
type RoleCache interface {
	GetRoles(ctx context.Context) ([]authz.Role, bool, error)
	SetRoles(ctx context.Context, roles []authz.Role) error
	Invalidate(ctx context.Context) error
}

// RedisRoleCache implements RoleCache with a single JSON key
type RedisRoleCache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewRedisRoleCache creates a role cache. m may be nil.
func NewRedisRoleCache(client *redis.Client, ttl time.Duration, m *metrics.Metrics) *RedisRoleCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisRoleCache{client: client, ttl: ttl, metrics: m}
}

// GetRoles returns the cached catalog and whether it was present
func (c *RedisRoleCache) GetRoles(ctx context.Context) ([]authz.Role, bool, error) {
	data, err := c.client.Get(ctx, roleCatalogKey).Result()
	if err == redis.Nil {
		c.metrics.RecordCache(false)
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	var roles []authz.Role
	if err := json.Unmarshal([]byte(data), &roles); err != nil {
		// If unmarshal fails, delete corrupt data
		c.client.Del(ctx, roleCatalogKey)
		c.metrics.RecordCache(false)
		return nil, false, nil
	}
	c.metrics.RecordCache(true)
	return roles, true, nil
}

func (c *RedisRoleCache) SetRoles(ctx context.Context, roles []authz.Role) error {
	data, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	return c.client.Set(ctx, roleCatalogKey, data, c.ttl).Err()
}

func (c *RedisRoleCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, roleCatalogKey).Err()
}
