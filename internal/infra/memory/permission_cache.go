package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// RoleModuleLoader returns the module names granted to a user's role.
type RoleModuleLoader interface {
	LoadRoleModules(ctx context.Context, userID string) ([]string, error)
}

// PermissionCache answers module checks from a per-user cache of role modules.
type PermissionCache struct {
	loader RoleModuleLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedModules
}

type cachedModules struct {
	modules   map[string]struct{}
	expiresAt time.Time
}

func NewPermissionCache(loader RoleModuleLoader, ttl time.Duration) *PermissionCache {
	return &PermissionCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedModules),
	}
}

func (c *PermissionCache) IsAllowed(ctx context.Context, userID, module string) (bool, error) {
	now := c.clock()
	c.mu.RLock()
	if entry, ok := c.cache[userID]; ok && entry.expiresAt.After(now) {
		c.mu.RUnlock()
		_, allowed := entry.modules[module]
		return allowed, nil
	}
	c.mu.RUnlock()

	result, err, _ := c.sf.Do(userID, func() (interface{}, error) {
		names, err := c.loader.LoadRoleModules(ctx, userID)
		if err != nil {
			return nil, err
		}
		modules := make(map[string]struct{}, len(names))
		for _, name := range names {
			modules[name] = struct{}{}
		}
		c.mu.Lock()
		c.cache[userID] = cachedModules{
			modules:   modules,
			expiresAt: c.clock().Add(jitter(c.ttl, c.rnd, &c.rndMu)),
		}
		c.mu.Unlock()
		return modules, nil
	})
	if err != nil {
		return false, err
	}
	_, allowed := result.(map[string]struct{})[module]
	return allowed, nil
}

// Invalidate forgets a user's modules, e.g. after a role change.
func (c *PermissionCache) Invalidate(userID string) {
	c.mu.Lock()
	delete(c.cache, userID)
	c.mu.Unlock()
	c.sf.Forget(userID)
}

// StaticRoleModules is a RoleModuleLoader backed by a map (useful for tests/demos).
type StaticRoleModules map[string][]string

func (s StaticRoleModules) LoadRoleModules(_ context.Context, userID string) ([]string, error) {
	return s[userID], nil
}

// UniformRoleModules grants the same modules to every user.
type UniformRoleModules []string

func (u UniformRoleModules) LoadRoleModules(context.Context, string) ([]string, error) {
	return append([]string(nil), u...), nil
}

// StaticDirectory is an app.RecipientDirectory backed by a map.
type StaticDirectory map[string][]string

func (d StaticDirectory) RecipientTokens(_ context.Context, userID string) ([]string, error) {
	return d[userID], nil
}
