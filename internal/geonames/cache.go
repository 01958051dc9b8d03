package geonames

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// cacheTTL bounds how long a geonames hierarchy response is trusted before
// a fresh lookup is made. Country/region/city hierarchies change on the
// order of months, not minutes, so a generous TTL is safe.
const cacheTTL = 12 * time.Hour

// Cache is a thin TTL cache over redis for geonames lookups, sparing the
// external service repeated identical queries during campaign creation
// bursts.
type Cache struct {
	rdb *redis.Client
	log *zap.Logger
}

// NewCache wraps an existing redis client.
func NewCache(rdb *redis.Client, log *zap.Logger) *Cache {
	return &Cache{rdb: rdb, log: log}
}

// Get looks up key and unmarshals it into dest, reporting whether a valid
// cache entry was found. Any redis or decode error is treated as a miss —
// the cache is a performance optimization, never a correctness dependency.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("geonames cache get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.log.Warn("geonames cache decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set stores value under key with cacheTTL. Failures are logged, not
// returned — a cache write failure must never fail the caller's request.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, cacheTTL).Err(); err != nil {
		c.log.Warn("geonames cache set failed", zap.String("key", key), zap.Error(err))
	}
}
