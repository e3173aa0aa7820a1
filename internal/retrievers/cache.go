package retrievers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"github.com/cozy-crashes/crashlens/internal/links"
	"github.com/cozy-crashes/crashlens/internal/pipeline"
	"github.com/cozy-crashes/crashlens/internal/remoteconfig"
)

const DefaultCacheTTL = 15 * time.Minute

// BodyCache stores retrieved bodies by key.
type BodyCache interface {
	Get(ctx context.Context, key string) ([]string, bool, error)
	Set(ctx context.Context, key string, bodies []string, ttl time.Duration) error
}

// Cached serves Fetch from a BodyCache before calling the wrapped retriever.
// Cache failures are logged and fall through to the retriever.
type Cached struct {
	pipeline.Retriever
	cache  BodyCache
	ttl    time.Duration
	logger *zap.Logger
}

func Cache(r pipeline.Retriever, c BodyCache, ttl time.Duration, logger *zap.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cached{Retriever: r, cache: c, ttl: ttl, logger: logger.Named("bodycache")}
}

func (c *Cached) Fetch(ctx context.Context, u *url.URL, snap *remoteconfig.Snapshot) ([]string, error) {
	key, err := c.key(u)
	if err != nil {
		return c.Retriever.Fetch(ctx, u, snap)
	}
	if bodies, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		return bodies, nil
	}

	bodies, err := c.Retriever.Fetch(ctx, u, snap)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, key, bodies, c.ttl); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return bodies, nil
}

func (c *Cached) key(u *url.URL) (string, error) {
	fp, err := links.Fingerprint(u.String())
	if err != nil {
		return "", err
	}
	return "crashlens:body:" + c.Identifier() + ":" + fp, nil
}

// RedisBodyCache keeps msgpack-encoded bodies in Redis.
type RedisBodyCache struct {
	Client redis.Cmdable
}

func (r RedisBodyCache) Get(ctx context.Context, key string) ([]string, bool, error) {
	raw, err := r.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var bodies []string
	if err := msgpack.Unmarshal(raw, &bodies); err != nil {
		return nil, false, fmt.Errorf("decode cached bodies: %w", err)
	}
	return bodies, true, nil
}

func (r RedisBodyCache) Set(ctx context.Context, key string, bodies []string, ttl time.Duration) error {
	raw, err := msgpack.Marshal(bodies)
	if err != nil {
		return err
	}
	return r.Client.Set(ctx, key, raw, ttl).Err()
}

// DialRedis connects and pings.
func DialRedis(ctx context.Context, addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: timeout,
	})
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if pong != "PONG" {
		_ = client.Close()
		return nil, fmt.Errorf("expected PONG, got %s", pong)
	}
	return client, nil
}
