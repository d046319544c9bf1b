package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RoleModuleLoader returns the module names granted to a user's role.
type RoleModuleLoader interface {
	LoadRoleModules(ctx context.Context, userID string) ([]string, error)
}

// loadedMarker keeps users without any module distinguishable from a cache miss.
const loadedMarker = "__loaded__"

// PermissionCache caches each user's role modules as a Redis set:
// SADD permissions:{userID} {module...} __loaded__
type PermissionCache struct {
	client *redis.Client
	loader RoleModuleLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewPermissionCache(client *redis.Client, loader RoleModuleLoader, ttl time.Duration) *PermissionCache {
	return &PermissionCache{client: client, loader: loader, ttl: ttl}
}

func (c *PermissionCache) IsAllowed(ctx context.Context, userID, module string) (bool, error) {
	key := c.key(userID)
	if n, err := c.client.Exists(ctx, key).Result(); err == nil && n > 0 {
		return c.client.SIsMember(ctx, key, module).Result()
	}

	result, err, _ := c.sf.Do(userID, func() (interface{}, error) {
		names, err := c.loader.LoadRoleModules(ctx, userID)
		if err != nil {
			return nil, err
		}
		members := make([]interface{}, 0, len(names)+1)
		for _, name := range names {
			members = append(members, name)
		}
		members = append(members, loadedMarker)

		pipe := c.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.SAdd(ctx, key, members...)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		_, _ = pipe.Exec(ctx)
		return names, nil
	})
	if err != nil {
		return false, err
	}
	for _, name := range result.([]string) {
		if name == module {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops a user's cached modules.
func (c *PermissionCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, c.key(userID)).Err()
}

func (c *PermissionCache) key(userID string) string {
	return "permissions:" + userID
}
