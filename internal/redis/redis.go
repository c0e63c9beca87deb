// Package redis holds the optional Redis connection shared by the listing
// cache and the session mirror.
//
// Every helper is a no-op when Redis is not configured or unreachable, so
// negotiation never waits on it.
package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/dayuer/haggle-go/internal/logger"
)

// Key layout.
const (
	KeyListing = "listing:" // listing:<platform>:<itemId> → Listing JSON
	KeySession = "session:" // session:<id> → Snapshot JSON
	KeyIndex   = "sessions" // sorted set of session ids scored by last mirror time
)

// Config holds Redis connection settings.
type Config struct {
	URL      string // redis://host:port
	Password string
	DB       int
}

var (
	mu     sync.RWMutex
	client *redis.Client
)

// log resolves the component logger per call so it follows logger.SetDefault.
func log() *logger.Logger { return logger.NewComponentLogger("redis") }

func dial(cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse url")
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	opts.DB = cfg.DB
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.MaxRetries = 2

	c := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "ping %s", opts.Addr)
	}
	return c, nil
}

// Init connects to Redis. It reports whether a connection is now open; an
// empty URL or a failed ping leaves the package disabled.
func Init(cfg Config) bool {
	if cfg.URL == "" {
		log().Debug("not configured")
		return false
	}
	c, err := dial(cfg)
	if err != nil {
		log().Warn("disabled", "error", err)
		return false
	}

	mu.Lock()
	if client != nil {
		client.Close()
	}
	client = c
	mu.Unlock()

	log().Info("connected", "addr", c.Options().Addr, "db", cfg.DB)
	return true
}

// Close drops the connection.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		client.Close()
		client = nil
	}
}

// Available reports whether a connection is open.
func Available() bool {
	return current() != nil
}

func current() *redis.Client {
	mu.RLock()
	defer mu.RUnlock()
	return client
}

// GetJSON decodes key into out. Misses, outages and bad JSON all return false.
func GetJSON(ctx context.Context, key string, out any) bool {
	c := current()
	if c == nil {
		return false
	}
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log().Warn("get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log().Warn("stale entry", "key", key, "error", err)
		return false
	}
	return true
}

// SetJSON stores value as JSON under key for ttl.
func SetJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	c := current()
	if c == nil {
		return false
	}
	data, err := json.Marshal(value)
	if err != nil {
		log().Warn("encode failed", "key", key, "error", err)
		return false
	}
	if err := c.Set(ctx, key, data, ttl).Err(); err != nil {
		log().Warn("set failed", "key", key, "error", err)
		return false
	}
	return true
}

// MirrorSession writes a session snapshot and bumps it in the index in one
// transaction.
func MirrorSession(ctx context.Context, id string, snapshot any, ttl time.Duration) bool {
	c := current()
	if c == nil {
		return false
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		log().Warn("encode failed", "session", id, "error", err)
		return false
	}
	_, err = c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, SessionKey(id), data, ttl)
		p.ZAdd(ctx, KeyIndex, redis.Z{Score: float64(time.Now().Unix()), Member: id})
		return nil
	})
	if err != nil {
		log().Warn("mirror failed", "session", id, "error", err)
		return false
	}
	return true
}

// ForgetSession removes a mirrored snapshot and its index entry.
func ForgetSession(ctx context.Context, id string) {
	c := current()
	if c == nil {
		return
	}
	_, err := c.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, SessionKey(id))
		p.ZRem(ctx, KeyIndex, id)
		return nil
	})
	if err != nil {
		log().Warn("forget failed", "session", id, "error", err)
	}
}

// RecentSessions returns up to limit mirrored session ids, most recently
// updated first.
func RecentSessions(ctx context.Context, limit int64) ([]string, error) {
	c := current()
	if c == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	ids, err := c.ZRevRange(ctx, KeyIndex, 0, limit-1).Result()
	return ids, errors.Wrap(err, "read session index")
}

// ListingKey returns the key of a cached listing.
func ListingKey(refKey string) string {
	return KeyListing + refKey
}

// SessionKey returns the key of a mirrored session snapshot.
func SessionKey(id string) string {
	return KeySession + id
}
