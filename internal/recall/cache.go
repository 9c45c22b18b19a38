package recall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/autoseers/carseer/internal/model"
)

// redisKV is the subset of the go-redis client used by CachedSource.
type redisKV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedSource memoises another Source in Redis.  Cache failures fall
// through to the wrapped source; only successful lookups are cached.
type CachedSource struct {
	next Source
	rdb  redisKV
	ttl  time.Duration
	log  zerolog.Logger
}

// NewCachedSource wraps next.  A nil rdb disables caching.
func NewCachedSource(next Source, rdb redisKV, ttl time.Duration, log zerolog.Logger) Source {
	if rdb == nil || ttl <= 0 {
		return next
	}
	return &CachedSource{next: next, rdb: rdb, ttl: ttl, log: log}
}

// CacheKey is the Redis key for a lookup.
func CacheKey(year int, vehicleMake, vehicleModel string) string {
	return fmt.Sprintf("recall:%d:%s:%s", year,
		strings.ToLower(strings.TrimSpace(vehicleMake)), strings.ToLower(strings.TrimSpace(vehicleModel)))
}

// Query implements Source.
func (c *CachedSource) Query(ctx context.Context, year int, vehicleMake, vehicleModel string) (*model.ExternalRecallSet, error) {
	key := CacheKey(year, vehicleMake, vehicleModel)
	if bs, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached model.ExternalRecallSet
		if err := json.Unmarshal(bs, &cached); err == nil {
			return &cached, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.log.Debug().Err(err).Str("key", key).Msg("recall cache read failed")
	}

	set, err := c.next.Query(ctx, year, vehicleMake, vehicleModel)
	if err != nil || set == nil {
		return set, err
	}
	if payload, err := json.Marshal(set); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("recall cache write failed")
		}
	}
	return set, nil
}
