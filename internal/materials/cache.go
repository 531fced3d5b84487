package materials

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const statusCacheKey = "materials:status"

// StatusSnapshot is one row of the cached low-stock overview.
type StatusSnapshot struct {
	RawMaterial
	Status MaterialStatus `json:"status"`
}

// StatusCache keeps the material status snapshot in redis for a short TTL so
// dashboard polling does not hammer the database. Mutating operations
// invalidate it.
type StatusCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStatusCache constructs the cache.
func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	return &StatusCache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, or ok=false on miss or any redis failure.
func (c *StatusCache) Get(ctx context.Context) ([]StatusSnapshot, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	payload, err := c.client.Get(ctx, statusCacheKey).Bytes()
	if err != nil {
		return nil, false
	}
	var snapshots []StatusSnapshot
	if err := json.Unmarshal(payload, &snapshots); err != nil {
		return nil, false
	}
	return snapshots, true
}

// Set stores the snapshot. Failures are ignored; the cache is advisory.
func (c *StatusCache) Set(ctx context.Context, snapshots []StatusSnapshot) {
	if c == nil || c.client == nil {
		return
	}
	payload, err := json.Marshal(snapshots)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, statusCacheKey, payload, c.ttl).Err()
}

// Invalidate drops the snapshot after a stock mutation.
func (c *StatusCache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, statusCacheKey).Err()
}
