package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	// CacheTag is the invalidation tag shared with page caches.
	CacheTag        = "pricing"
	cacheVersionKey = CacheTag + ":version"
	// BumpChannel carries the new version number after every invalidation.
	BumpChannel = "pricing.bump"

	importLockKey = CacheTag + ":import:lock"

	// snapshotLoadTimeout bounds a shared load, which outlives the request
	// that started it.
	snapshotLoadTimeout = 15 * time.Second
)

// unlockScript deletes the lock only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Invalidator drops cached pricing after a successful write.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Cache wraps Redis based caching with versioning controls. Every key embeds
// the current version, so bumping the version orphans all earlier entries.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so two cold readers agree on the first version.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{CacheTag}, parts...), ":")
	if !c.enabled() {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("pricing cache: loader required")
	}
	if c.enabled() {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.enabled() {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate increments the version and publishes it on BumpChannel.
func (c *Cache) Invalidate(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return fmt.Errorf("pricing cache: bump version: %w", err)
	}
	if err := c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err(); err != nil {
		return fmt.Errorf("pricing cache: publish bump: %w", err)
	}
	return nil
}

// LockImport takes the cluster-wide import lock for at most ttl. ok is false
// while another run holds it. Without redis the lock is always granted.
func (c *Cache) LockImport(ctx context.Context, ttl time.Duration) (unlock func(), ok bool, err error) {
	noop := func() {}
	if !c.enabled() {
		return noop, true, nil
	}
	token := uuid.NewString()
	ok, err = c.client.SetNX(ctx, importLockKey, token, ttl).Result()
	if err != nil {
		return noop, false, fmt.Errorf("pricing cache: import lock: %w", err)
	}
	if !ok {
		return noop, false, nil
	}
	return func() {
		// The request context may already be done.
		_ = unlockScript.Run(context.WithoutCancel(ctx), c.client, []string{importLockKey}, token).Err()
	}, true, nil
}

// ListenForInvalidation subscribes to version bumps and calls onBump with each
// new version until ctx is cancelled. The subscription is confirmed before
// returning.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func(context.Context, int64)) error {
	if !c.enabled() || onBump == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("pricing cache: subscribe: %w", err)
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				onBump(ctx, ver)
			}
		}
	}()
	return nil
}

// CachedSource is a read-through SnapshotSource. Concurrent misses for the
// same slug share one load. Redis failures fall back to the underlying source.
type CachedSource struct {
	cache  *Cache
	source SnapshotSource
	logger *slog.Logger
	group  singleflight.Group
}

func NewCachedSource(cache *Cache, source SnapshotSource, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CachedSource{cache: cache, source: source, logger: logger}
}

func (s *CachedSource) Snapshot(ctx context.Context, slug string) (Snapshot, error) {
	key, err := s.cache.BuildKey(ctx, "snapshot", slug)
	if err != nil {
		s.logger.Warn("pricing cache unavailable", slog.String("slug", slug), slog.Any("error", err))
		return s.source.Snapshot(ctx, slug)
	}
	ch := s.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), snapshotLoadTimeout)
		defer cancel()
		var snap Snapshot
		var loadErr error
		err := s.cache.FetchJSON(loadCtx, key, &snap, func(ctx context.Context) (any, error) {
			loaded, err := s.source.Snapshot(ctx, slug)
			loadErr = err
			return loaded, err
		})
		if err != nil && loadErr == nil {
			s.logger.Warn("pricing cache read failed", slog.String("key", key), slog.Any("error", err))
			return s.source.Snapshot(loadCtx, slug)
		}
		return snap, err
	})
	select {
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Snapshot{}, res.Err
		}
		return res.Val.(Snapshot), nil
	}
}
