package enrichment

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const cachePrefix = "hippo:enrich:"

// Cache decorates a Provider with a bounded Redis-backed TTL cache for
// feature responses. Injected as a dependency, never a singleton; cache
// failures fall through to the wrapped provider.
type Cache struct {
	inner  Provider
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCache wraps inner with a TTL cache.
func NewCache(inner Provider, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	return &Cache{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// Enrich implements Provider with read-through caching.
func (c *Cache) Enrich(ctx context.Context, contentRef string) (Features, error) {
	key := cachePrefix + hashRef(contentRef)

	if data, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var f Features
		if json.Unmarshal(data, &f) == nil {
			return f, nil
		}
	}

	f, err := c.inner.Enrich(ctx, contentRef)
	if err != nil {
		return Features{}, err
	}

	if data, err := json.Marshal(f); err == nil {
		if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Debug("enrichment cache write failed", zap.Error(err))
		}
	}
	return f, nil
}

// Similarity is not cached; pair cardinality makes hit rates negligible.
func (c *Cache) Similarity(ctx context.Context, aRef, bRef string) (float64, error) {
	return c.inner.Similarity(ctx, aRef, bRef)
}

func hashRef(ref string) string {
	sum := sha256.Sum256([]byte(ref))
	return hex.EncodeToString(sum[:16])
}
