package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClaimer provides claims via Redis using SET NX. Keys carry no TTL;
// the Redis instance must not evict them (maxmemory-policy noeviction).
type RedisClaimer struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisClaimer creates a claimer backed by Redis.
func NewRedisClaimer(client *redis.Client) *RedisClaimer {
	return &RedisClaimer{client: client, now: time.Now}
}

// Claim tries to set the key. Returns true if it was absent.
func (c *RedisClaimer) Claim(ctx context.Context, key string) (bool, error) {
	k := fmt.Sprintf("automation:claim:%s", key)
	ok, err := c.client.SetNX(ctx, k, c.now().UTC().Format(time.RFC3339), 0).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", k, err)
	}
	return ok, nil
}
