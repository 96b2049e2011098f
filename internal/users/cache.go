package users

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/estatecrm/estatecrm/internal/rbac"
	"github.com/estatecrm/estatecrm/internal/rbac/catalog"
)

const roleKeyPrefix = "estatecrm:role:"

// RoleCache fronts a RoleLookup with Redis. Concurrent misses for one user
// share a single load. Redis errors degrade to the underlying lookup.
type RoleCache struct {
	next   rbac.RoleLookup
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

// NewRoleCache wraps next. A nil client disables caching.
func NewRoleCache(next rbac.RoleLookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *RoleCache {
	return &RoleCache{next: next, client: client, ttl: ttl, logger: logger}
}

func roleKey(userID int64) string {
	return roleKeyPrefix + strconv.FormatInt(userID, 10)
}

// GetRole implements rbac.RoleLookup.
func (c *RoleCache) GetRole(ctx context.Context, userID int64) (catalog.Role, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.next.GetRole(ctx, userID)
	}
	key := roleKey(userID)
	raw, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if role, perr := catalog.ParseRole(raw); perr == nil {
			return role, nil
		}
		c.warn("role cache corrupt entry", key, nil)
	case !errors.Is(err, redis.Nil):
		c.warn("role cache get", key, err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		role, err := c.next.GetRole(ctx, userID)
		if err != nil {
			return catalog.Role(0), err
		}
		if err := c.client.Set(ctx, key, role.String(), c.ttl).Err(); err != nil {
			c.warn("role cache set", key, err)
		}
		return role, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(catalog.Role), nil
}

// Invalidate drops the cached role so the next lookup reloads it.
func (c *RoleCache) Invalidate(ctx context.Context, userID int64) error {
	if c.client == nil {
		return nil
	}
	return c.client.Del(ctx, roleKey(userID)).Err()
}

func (c *RoleCache) warn(msg, key string, err error) {
	if c.logger == nil {
		return
	}
	if err != nil {
		c.logger.Warn(msg, slog.String("key", key), slog.Any("error", err))
		return
	}
	c.logger.Warn(msg, slog.String("key", key))
}
