package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"xrate-oracle/internal/rate"
)

// redisCache is the RateCache for multi-replica deployments: the same
// minute-scoped entries, held in Redis with a TTL instead of an LRU bound.
type redisCache struct {
	client *redis.Client
	logger zerolog.Logger
}

// NewRedisCache builds a RateCache on the given Redis client.
func NewRedisCache(client *redis.Client, logger zerolog.Logger) RateCache {
	return &redisCache{
		client: client,
		logger: logger.With().Str("component", "rate_cache").Logger(),
	}
}

func redisKey(symbol string, tsMinute uint64) string {
	return fmt.Sprintf("rates:%s:%d", symbol, tsMinute)
}

func (c *redisCache) Get(symbol string, tsMinute uint64) (rate.Queried, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	raw, err := c.client.Get(ctx, redisKey(symbol, tsMinute)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("symbol", symbol).Msg("cache lookup failed")
		}
		return rate.Queried{}, false
	}
	var entry rate.Queried
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn().Err(err).Str("symbol", symbol).Msg("cache entry corrupt")
		return rate.Queried{}, false
	}
	return entry, true
}

func (c *redisCache) Put(entry rate.Queried) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn().Err(err).Msg("cache entry not serializable")
		return
	}
	key := redisKey(entry.BaseAsset.Symbol, entry.Timestamp-entry.Timestamp%60)
	ttl := time.Duration(cacheTTLSeconds) * time.Second
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("cache write failed")
	}
}

// Prune is a no-op: Redis expires entries by TTL.
func (c *redisCache) Prune(uint64) {}
