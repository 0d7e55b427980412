package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AlertDeduper suppresses repeated alerts of the same kind within a cooldown.
type AlertDeduper struct {
	redis    *redis.Client
	cooldown time.Duration
	prefix   string
}

// NewAlertDeduper creates a Redis-backed deduper.
func NewAlertDeduper(redisClient *redis.Client, cooldown time.Duration) *AlertDeduper {
	return &AlertDeduper{
		redis:    redisClient,
		cooldown: cooldown,
		prefix:   "alert_dedupe:",
	}
}

// Acquire returns true when no alert with key was sent within the cooldown
// and claims the slot; false means the alert should be dropped.
func (d *AlertDeduper) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := d.redis.SetNX(ctx, d.prefix+key, time.Now().UTC().Format(time.RFC3339), d.cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("alert dedupe for %s: %w", key, err)
	}
	return ok, nil
}

// Release clears the claim on key so the next alert goes through.
func (d *AlertDeduper) Release(ctx context.Context, key string) error {
	return d.redis.Del(ctx, d.prefix+key).Err()
}
