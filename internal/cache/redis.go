package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/proximityhq/proximity-backend/internal/config"
)

// AcceptedCountTTL bounds staleness of the cached accepted-member counts.
const AcceptedCountTTL = time.Hour

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache initializes the Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisCache{Client: redis.NewClient(opts)}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// KeyForAcceptedCount generates the key caching a group's accepted-member
// count.
func (c *RedisCache) KeyForAcceptedCount(groupID uuid.UUID) string {
	return fmt.Sprintf("group:accepted:%s", groupID)
}

// GetAcceptedCount returns the cached accepted-member count for a group.
// A cache miss and an unreachable Redis both return ok=false, so the caller
// falls back to the database either way.
func (c *RedisCache) GetAcceptedCount(ctx context.Context, groupID uuid.UUID) (int, bool) {
	val, err := c.Client.Get(ctx, c.KeyForAcceptedCount(groupID)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	// refresh TTL on access
	_ = c.Client.Expire(ctx, c.KeyForAcceptedCount(groupID), AcceptedCountTTL).Err()
	return n, true
}

// SetAcceptedCount stores a freshly computed accepted-member count.
func (c *RedisCache) SetAcceptedCount(ctx context.Context, groupID uuid.UUID, count int) error {
	return c.Client.Set(ctx, c.KeyForAcceptedCount(groupID), strconv.Itoa(count), AcceptedCountTTL).Err()
}

// InvalidateAcceptedCount drops the cached count after a membership mutation.
func (c *RedisCache) InvalidateAcceptedCount(ctx context.Context, groupID uuid.UUID) error {
	return c.Client.Del(ctx, c.KeyForAcceptedCount(groupID)).Err()
}
