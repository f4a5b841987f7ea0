package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/comexlabs/metalcast/internal/models"
)

// SeriesCacheEntry wraps a cached market-series bundle with metadata.
type SeriesCacheEntry struct {
	Series    *models.MarketSeries `json:"series"`
	CachedAt  time.Time            `json:"cached_at"`
	ExpiresAt time.Time            `json:"expires_at"`
}

// SeriesCacheStats tracks cache performance counters.
type SeriesCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	mu     sync.RWMutex
}

// RedisSeriesCache caches fetched per-metal market series in Redis so that
// repeated pipeline runs within the TTL skip the upstream queries. A cache
// failure is never fatal; callers fall through to the database.
type RedisSeriesCache struct {
	redis  *redis.Client
	ttl    time.Duration
	stats  *SeriesCacheStats
	prefix string
	logger *logrus.Logger
}

func NewRedisSeriesCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSeriesCache {
	return &RedisSeriesCache{
		redis:  redisClient,
		ttl:    ttl,
		stats:  &SeriesCacheStats{},
		prefix: "series_cache:",
		logger: logger,
	}
}

// Get retrieves the cached market series for a metal.
func (c *RedisSeriesCache) Get(ctx context.Context, metal string) (*models.MarketSeries, bool) {
	data, err := c.redis.Get(ctx, c.prefix+metal).Result()
	if err == redis.Nil {
		c.recordMiss()
		return nil, false
	}
	if err != nil {
		c.logger.WithError(err).WithField("metal", metal).Warn("Redis error reading series cache")
		c.recordMiss()
		return nil, false
	}

	var entry SeriesCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).WithField("metal", metal).Warn("Corrupt series cache entry")
		c.recordMiss()
		return nil, false
	}

	c.stats.mu.Lock()
	c.stats.Hits++
	c.stats.mu.Unlock()
	return entry.Series, true
}

// Set stores the market series for a metal with the configured TTL.
func (c *RedisSeriesCache) Set(ctx context.Context, metal string, series *models.MarketSeries) {
	now := time.Now()
	entry := SeriesCacheEntry{
		Series:    series,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		c.logger.WithError(err).WithField("metal", metal).Warn("Failed to serialize series cache entry")
		return
	}
	if err := c.redis.Set(ctx, c.prefix+metal, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("metal", metal).Warn("Redis error writing series cache")
		return
	}

	c.stats.mu.Lock()
	c.stats.Sets++
	c.stats.mu.Unlock()
}

// Invalidate drops the cached series for a metal.
func (c *RedisSeriesCache) Invalidate(ctx context.Context, metal string) {
	if err := c.redis.Del(ctx, c.prefix+metal).Err(); err != nil {
		c.logger.WithError(err).WithField("metal", metal).Warn("Redis error invalidating series cache")
	}
}

// Stats returns a copy of the cache counters.
func (c *RedisSeriesCache) Stats() SeriesCacheStats {
	c.stats.mu.RLock()
	defer c.stats.mu.RUnlock()
	return SeriesCacheStats{Hits: c.stats.Hits, Misses: c.stats.Misses, Sets: c.stats.Sets}
}

func (c *RedisSeriesCache) recordMiss() {
	c.stats.mu.Lock()
	c.stats.Misses++
	c.stats.mu.Unlock()
}
