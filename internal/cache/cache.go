// Package cache is a thin Redis layer. Every operation no-ops when the
// server is unreachable so callers never need cache-specific error handling.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type Cache struct {
	rdb        *redis.Client
	defaultTTL time.Duration
	connected  bool
}

func New(redisURL string, defaultTTL time.Duration) *Cache {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Error().Err(err).Str("module", "cache").Msg("bad redis url")
		return &Cache{defaultTTL: defaultTTL}
	}
	return &Cache{rdb: redis.NewClient(opts), defaultTTL: defaultTTL}
}

func (c *Cache) Connect(ctx context.Context) error {
	if c.rdb == nil {
		return redis.ErrClosed
	}
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("module", "cache").Msg("redis unreachable, caching disabled")
		return err
	}
	c.connected = true
	log.Info().Str("module", "cache").Msg("connected to redis")
	return nil
}

func (c *Cache) Disconnect() {
	if c.rdb != nil {
		_ = c.rdb.Close()
	}
	c.connected = false
}

func (c *Cache) Ping(ctx context.Context) bool {
	if !c.connected {
		return false
	}
	return c.rdb.Ping(ctx).Err() == nil
}

// Get unmarshals the cached JSON into dest. Returns false on miss or when
// the cache is offline.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if !c.connected {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			log.Error().Err(err).Str("module", "cache").Str("key", key).Msg("cache get")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		log.Error().Err(err).Str("module", "cache").Str("key", key).Msg("cache decode")
		return false
	}
	return true
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if !c.connected {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		log.Error().Err(err).Str("module", "cache").Str("key", key).Msg("cache encode")
		return
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Error().Err(err).Str("module", "cache").Str("key", key).Msg("cache set")
	}
}

func (c *Cache) Delete(ctx context.Context, key string) {
	if !c.connected {
		return
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		log.Error().Err(err).Str("module", "cache").Str("key", key).Msg("cache delete")
	}
}
