package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "iam:perms:version"

// Cache stores resolved permission sets in Redis under versioned keys.
// Bumping the version orphans every cached set at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client or a non-positive ttl
// yields a disabled cache whose methods are no-ops.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if client == nil || ttl <= 0 {
		return nil
	}
	return &Cache{client: client, ttl: ttl}
}

// Enabled reports whether the cache is backed by Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version. A missing version key is
// seeded from the clock so a lost key never resurrects sets cached under an
// earlier small version.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, time.Now().UnixNano(), 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

// Invalidate bumps the version, seeding it first when the key is missing.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	if _, err := c.Version(ctx); err != nil {
		return err
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

func (c *Cache) key(ctx context.Context, roleID string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("iam:perms:%s:%d", roleID, ver), nil
}

func (c *Cache) get(ctx context.Context, key string) ([]string, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var names []string
	if err := json.Unmarshal(payload, &names); err != nil {
		return nil, false, err
	}
	return names, true, nil
}

func (c *Cache) set(ctx context.Context, key string, names []string) error {
	raw, err := json.Marshal(names)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Cache lookup results reported to a CacheObserver.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// CacheObserver receives the result of every cache lookup.
type CacheObserver interface {
	ObserveCache(result string)
}

// CachedResolver serves GetPermissions from the cache and answers
// HasPermission from the same set, so both always agree. Redis failures fall
// back to the wrapped resolver.
type CachedResolver struct {
	next     Resolver
	cache    *Cache
	logger   *slog.Logger
	observer CacheObserver
	group    singleflight.Group
}

// NewCachedResolver wraps next. When cache is disabled next is returned as is.
// observer may be nil.
func NewCachedResolver(next Resolver, cache *Cache, logger *slog.Logger, observer CacheObserver) Resolver {
	if !cache.Enabled() {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedResolver{next: next, cache: cache, logger: logger, observer: observer}
}

// HasPermission checks name against the cached set.
func (r *CachedResolver) HasPermission(ctx context.Context, roleID, name string) (bool, error) {
	set, err := r.GetPermissions(ctx, roleID)
	if err != nil {
		return false, err
	}
	return set.Has(name), nil
}

// GetPermissions returns the cached set, loading it once per version on miss.
func (r *CachedResolver) GetPermissions(ctx context.Context, roleID string) (PermissionSet, error) {
	if roleID == "" {
		return PermissionSet{}, nil
	}
	key, err := r.cache.key(ctx, roleID)
	if err != nil {
		r.logger.Warn("permission cache version", slog.Any("error", err))
		r.observe(CacheError)
		return r.next.GetPermissions(ctx, roleID)
	}
	names, hit, err := r.cache.get(ctx, key)
	if err != nil {
		r.logger.Warn("permission cache get", slog.String("key", key), slog.Any("error", err))
		r.observe(CacheError)
		return r.next.GetPermissions(ctx, roleID)
	}
	if hit {
		r.observe(CacheHit)
		return NewPermissionSet(names...), nil
	}
	r.observe(CacheMiss)

	ch := r.group.DoChan(key, func() (any, error) {
		set, err := r.next.GetPermissions(context.WithoutCancel(ctx), roleID)
		if err != nil {
			return nil, err
		}
		if err := r.cache.set(context.WithoutCancel(ctx), key, set.Names()); err != nil {
			r.logger.Warn("permission cache set", slog.String("key", key), slog.Any("error", err))
		}
		return set, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(PermissionSet), nil
	}
}

func (r *CachedResolver) observe(result string) {
	if r.observer != nil {
		r.observer.ObserveCache(result)
	}
}

var _ Resolver = (*CachedResolver)(nil)
