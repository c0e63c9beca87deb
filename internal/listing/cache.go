package listing

import (
	"context"
	"time"

	"github.com/dayuer/haggle-go/internal/redis"
)

// Cache stores resolved listings by reference key.
type Cache interface {
	Get(ctx context.Context, key string) (*Listing, bool)
	Put(ctx context.Context, key string, l *Listing)
}

// RedisCache keeps real (non-synthetic) listings in Redis. It is a no-op
// when Redis is not connected.
type RedisCache struct {
	TTL time.Duration
}

// Get reads a cached listing.
func (c RedisCache) Get(ctx context.Context, key string) (*Listing, bool) {
	var l Listing
	if !redis.GetJSON(ctx, redis.ListingKey(key), &l) {
		return nil, false
	}
	return &l, true
}

// Put writes l unless it is synthetic.
func (c RedisCache) Put(ctx context.Context, key string, l *Listing) {
	if l == nil || l.Synthetic {
		return
	}
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	redis.SetJSON(ctx, redis.ListingKey(key), l, ttl)
}
