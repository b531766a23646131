package approvals

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingKeyPrefix = "approvals:pending:"

// RedisPendingCounter caches pending-queue sizes per venue. The badge
// tolerates briefly stale counts, so entries expire on a short TTL and are
// invalidated whenever a decision lands.
type RedisPendingCounter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPendingCounter instantiates the counter cache.
func NewRedisPendingCounter(client *redis.Client, ttl time.Duration) *RedisPendingCounter {
	return &RedisPendingCounter{client: client, ttl: ttl}
}

func pendingKey(venueID int64) string {
	return pendingKeyPrefix + strconv.FormatInt(venueID, 10)
}

// Get returns the cached count and whether it was present.
func (c *RedisPendingCounter) Get(ctx context.Context, venueID int64) (int64, bool, error) {
	if c == nil || c.client == nil {
		return 0, false, nil
	}
	count, err := c.client.Get(ctx, pendingKey(venueID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

// Set stores the count with the configured TTL.
func (c *RedisPendingCounter) Set(ctx context.Context, venueID, count int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, pendingKey(venueID), count, c.ttl).Err()
}

// Invalidate drops the cached count for a venue.
func (c *RedisPendingCounter) Invalidate(ctx context.Context, venueID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, pendingKey(venueID)).Err()
}
