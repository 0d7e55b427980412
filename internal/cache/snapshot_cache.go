package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nbrons/perp-prophet/internal/metrics"
	"github.com/nbrons/perp-prophet/internal/models"
)

const snapshotKey = "snapshot_cache:latest"

// SnapshotCacheEntry represents a cached snapshot with metadata
type SnapshotCacheEntry struct {
	Snapshot  models.RateSnapshot `json:"snapshot"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// SnapshotCacheStats tracks cache performance metrics
type SnapshotCacheStats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
}

// RedisSnapshotCache keeps the most recent rate snapshot in Redis so API
// requests between collector ticks do not hit the upstream feeds.
type RedisSnapshotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *logrus.Entry

	mu    sync.RWMutex
	stats SnapshotCacheStats
}

// NewRedisSnapshotCache creates a new Redis-based snapshot cache
func NewRedisSnapshotCache(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisSnapshotCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisSnapshotCache{
		redis:  redisClient,
		ttl:    ttl,
		logger: logger.WithField("component", "snapshot_cache"),
	}
}

// Get returns the cached snapshot. Expired or unreadable entries count as misses.
func (c *RedisSnapshotCache) Get(ctx context.Context) (models.RateSnapshot, bool) {
	data, err := c.redis.Get(ctx, snapshotKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("Redis error getting snapshot")
		}
		c.miss()
		return models.RateSnapshot{}, false
	}

	var entry SnapshotCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		c.logger.WithError(err).Warn("Error deserializing cached snapshot")
		c.miss()
		return models.RateSnapshot{}, false
	}

	if time.Now().After(entry.ExpiresAt) {
		c.miss()
		return models.RateSnapshot{}, false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	metrics.SnapshotCacheTotal.WithLabelValues("hit").Inc()
	return entry.Snapshot, true
}

// Set stores a snapshot with the configured TTL.
func (c *RedisSnapshotCache) Set(ctx context.Context, snapshot models.RateSnapshot) error {
	now := time.Now()
	entry := SnapshotCacheEntry{
		Snapshot:  snapshot,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("error serializing snapshot: %w", err)
	}
	if err := c.redis.Set(ctx, snapshotKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis error setting snapshot: %w", err)
	}

	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
	metrics.SnapshotCacheTotal.WithLabelValues("set").Inc()

	c.logger.WithField("ttl", c.ttl.String()).Debug("Cached rate snapshot")
	return nil
}

// Invalidate drops the cached snapshot.
func (c *RedisSnapshotCache) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, snapshotKey).Err()
}

// GetStats returns current cache statistics
func (c *RedisSnapshotCache) GetStats() SnapshotCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// LogStats logs current cache performance statistics
func (c *RedisSnapshotCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Snapshot cache stats")
}

func (c *RedisSnapshotCache) miss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
	metrics.SnapshotCacheTotal.WithLabelValues("miss").Inc()
}
