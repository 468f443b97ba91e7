package authz

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const rolePermsKeyPrefix = "authz:roleperms:"

// DefaultCacheTTL bounds how stale a cached role permission set may be.
const DefaultCacheTTL = 30 * time.Second

// CachedRoleLookup wraps a RoleLookup with a Redis cache. Role mutations
// must call Invalidate; otherwise entries expire after the TTL. Concurrent
// fills for the same role are collapsed through singleflight. Cache
// failures fall through to the underlying lookup.
type CachedRoleLookup struct {
	next   RoleLookup
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedRoleLookup constructs the cache layer. A zero ttl uses
// DefaultCacheTTL.
func NewCachedRoleLookup(next RoleLookup, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedRoleLookup {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRoleLookup{next: next, client: client, ttl: ttl, logger: logger}
}

type cachedPermissions struct {
	Permissions []Permission `json:"permissions"`
}

// PermissionsByRole implements RoleLookup.
func (c *CachedRoleLookup) PermissionsByRole(ctx context.Context, name string) ([]Permission, bool, error) {
	key := rolePermsKeyPrefix + name
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var entry cachedPermissions
		if err := json.Unmarshal(raw, &entry); err == nil {
			return entry.Permissions, true, nil
		}
	} else if err != redis.Nil && c.logger != nil {
		c.logger.Warn("role permission cache read", slog.String("role", name), slog.Any("error", err))
	}

	type fillResult struct {
		perms []Permission
		ok    bool
	}
	res, err, _ := c.group.Do(name, func() (any, error) {
		perms, ok, err := c.next.PermissionsByRole(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			if raw, err := json.Marshal(cachedPermissions{Permissions: perms}); err == nil {
				if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil && c.logger != nil {
					c.logger.Warn("role permission cache write", slog.String("role", name), slog.Any("error", err))
				}
			}
		}
		return fillResult{perms: perms, ok: ok}, nil
	})
	if err != nil {
		return nil, false, err
	}
	filled := res.(fillResult)
	return filled.perms, filled.ok, nil
}

// Invalidate drops the cached permission set for a role. Called by the role
// registry after every mutation.
func (c *CachedRoleLookup) Invalidate(ctx context.Context, name string) {
	if err := c.client.Del(ctx, rolePermsKeyPrefix+name).Err(); err != nil && c.logger != nil {
		c.logger.Warn("role permission cache invalidate", slog.String("role", name), slog.Any("error", err))
	}
}

var _ RoleLookup = (*CachedRoleLookup)(nil)
