package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CachedProvider wraps a Provider with Redis read-through caching.
type CachedProvider struct {
	provider Provider
	redis    *redis.Client
	cacheTTL time.Duration
}

// NewCachedProvider creates a Redis-backed caching layer around provider.
func NewCachedProvider(provider Provider, redisClient *redis.Client, cacheTTL time.Duration) *CachedProvider {
	return &CachedProvider{
		provider: provider,
		redis:    redisClient,
		cacheTTL: cacheTTL,
	}
}

// Comprehensive fetches a bundle with caching.
func (c *CachedProvider) Comprehensive(ctx context.Context, symbol string, asOf time.Time) (*Bundle, error) {
	cacheKey := bundleCacheKey(symbol, asOf)

	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		log.Debug().
			Str("symbol", symbol).
			Str("cache_key", cacheKey).
			Msg("Cache hit for Comprehensive")

		var bundle Bundle
		if err := json.Unmarshal([]byte(cached), &bundle); err == nil {
			return &bundle, nil
		}
		log.Warn().Err(err).Msg("Failed to unmarshal cached bundle, fetching fresh")
	} else if err != redis.Nil {
		// Log cache errors but continue with the provider call
		log.Warn().Err(err).Msg("Redis error during cache lookup")
	}

	log.Debug().
		Str("symbol", symbol).
		Msg("Cache miss, fetching from provider")

	bundle, err := c.provider.Comprehensive(ctx, symbol, asOf)
	if err != nil {
		return nil, err
	}

	// Store in cache (async, don't block on cache write failure)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(bundle)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal bundle for cache")
			return
		}

		// Point-in-time bundles are immutable, so they can live longer
		// than "latest" snapshots that move intraday.
		ttl := c.cacheTTL
		if !asOf.IsZero() {
			ttl = 6 * time.Hour
		}

		if err := c.redis.Set(cacheCtx, cacheKey, data, ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to cache bundle")
		} else {
			log.Debug().
				Str("cache_key", cacheKey).
				Dur("ttl", ttl).
				Msg("Cached bundle")
		}
	}()

	return bundle, nil
}

// History fetches daily bars with caching.
func (c *CachedProvider) History(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	cacheKey := fmt.Sprintf("marketdata:history:%s:%s:%s",
		symbol, start.Format("2006-01-02"), end.Format("2006-01-02"))

	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		log.Debug().
			Str("symbol", symbol).
			Str("cache_key", cacheKey).
			Msg("Cache hit for History")

		var bars []Bar
		if err := json.Unmarshal([]byte(cached), &bars); err == nil {
			return bars, nil
		}
		log.Warn().Err(err).Msg("Failed to unmarshal cached history, fetching fresh")
	} else if err != redis.Nil {
		log.Warn().Err(err).Msg("Redis error during cache lookup")
	}

	log.Debug().
		Str("symbol", symbol).
		Msg("Cache miss, fetching from provider")

	bars, err := c.provider.History(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}

	// Store in cache (async)
	go func() {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		data, err := json.Marshal(bars)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to marshal history for cache")
			return
		}

		// Closed ranges never change once the end date has passed.
		ttl := c.cacheTTL
		if end.Before(time.Now().Truncate(24 * time.Hour)) {
			ttl = 6 * time.Hour
		}

		if err := c.redis.Set(cacheCtx, cacheKey, data, ttl).Err(); err != nil {
			log.Warn().Err(err).Msg("Failed to cache history")
		} else {
			log.Debug().
				Str("cache_key", cacheKey).
				Dur("ttl", ttl).
				Msg("Cached history")
		}
	}()

	return bars, nil
}

// Health checks both the underlying provider and Redis.
func (c *CachedProvider) Health(ctx context.Context) error {
	type healthChecker interface {
		Health(ctx context.Context) error
	}
	if hc, ok := c.provider.(healthChecker); ok {
		if err := hc.Health(ctx); err != nil {
			return fmt.Errorf("provider unhealthy: %w", err)
		}
	}

	if err := c.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unhealthy: %w", err)
	}

	return nil
}

// InvalidateSymbol removes all cached entries for a symbol.
func (c *CachedProvider) InvalidateSymbol(ctx context.Context, symbol string) error {
	pattern := fmt.Sprintf("marketdata:*:%s*", symbol)

	iter := c.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.redis.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().
				Err(err).
				Str("key", iter.Val()).
				Msg("Failed to delete cache key")
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache invalidation failed: %w", err)
	}

	log.Info().
		Str("pattern", pattern).
		Msg("Cache invalidated")

	return nil
}

func bundleCacheKey(symbol string, asOf time.Time) string {
	if asOf.IsZero() {
		return fmt.Sprintf("marketdata:bundle:%s:latest", symbol)
	}
	return fmt.Sprintf("marketdata:bundle:%s:%s", symbol, asOf.Format("2006-01-02"))
}
