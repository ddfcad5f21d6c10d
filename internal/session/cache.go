package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultCacheTTL bounds how stale a cached session context may be. Session
// tokens rotate rarely relative to this.
const DefaultCacheTTL = 5 * time.Minute

// FlagSource reports the session cache kill switch.
type FlagSource interface {
	IsSessionCacheDisabled(ctx context.Context) bool
}

// CacheMetrics records cache hit/miss counters for the session cache.
type CacheMetrics interface {
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// CacheConfig holds configuration for the session cache.
type CacheConfig struct {
	// Inner is the repository behind the cache (required).
	Inner Repository

	// Client is the Redis client (required).
	Client *redis.Client

	// Flags gates the cache off entirely when the kill switch is thrown
	// (optional).
	Flags FlagSource

	// Metrics records hit/miss counters (optional).
	Metrics CacheMetrics

	// TTL overrides DefaultCacheTTL; zero selects the default.
	TTL time.Duration

	// Logger for cache operations.
	Logger zerolog.Logger
}

// Cache is a read-through Redis cache in front of a session Repository.
// Redis outages degrade to direct repository reads; they never fail a scan.
type Cache struct {
	inner   Repository
	client  *redis.Client
	flags   FlagSource
	metrics CacheMetrics
	ttl     time.Duration
	logger  zerolog.Logger
}

// NewCache creates a read-through session cache.
func NewCache(cfg CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		inner:   cfg.Inner,
		client:  cfg.Client,
		flags:   cfg.Flags,
		metrics: cfg.Metrics,
		ttl:     ttl,
		logger:  cfg.Logger,
	}
}

func cacheKey(sessionID string) string {
	return "session:" + sessionID
}

// GetSession retrieves the session context, preferring the cache.
func (c *Cache) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	if c.flags != nil && c.flags.IsSessionCacheDisabled(ctx) {
		return c.inner.GetSession(ctx, sessionID)
	}

	raw, err := c.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if err == nil {
		var s Session
		if jsonErr := json.Unmarshal(raw, &s); jsonErr == nil {
			if c.metrics != nil {
				c.metrics.RecordCacheHit("redis", "get_session")
			}
			return &s, nil
		}
		// A corrupt entry falls through to the repository and is
		// overwritten below.
		c.logger.Warn().Str("session_id", sessionID).Msg("corrupt session cache entry")
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("session cache read failed")
	}

	if c.metrics != nil {
		c.metrics.RecordCacheMiss("redis", "get_session")
	}

	s, err := c.inner.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(s); err == nil {
		if err := c.client.Set(ctx, cacheKey(sessionID), encoded, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("session cache write failed")
		}
	}

	return s, nil
}

// Invalidate drops a session from the cache, e.g. after a token rotation.
func (c *Cache) Invalidate(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, cacheKey(sessionID)).Err()
}

// Ensure Cache implements Repository interface.
var _ Repository = (*Cache)(nil)
