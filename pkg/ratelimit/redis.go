package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisLimiter keeps fixed windows in Redis so that all replicas share them.
type RedisLimiter struct {
	redis  *redis.Client
	cfg    Config
	logger zerolog.Logger
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *RedisLimiter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisLimiter{
		redis:  redisClient,
		cfg:    cfg.normalized(),
		logger: logger,
	}
}

// Allow counts one request for key. The counter expires with its window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := RedisKeyPrefix + key

	pipe := l.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		rateLimitErrorsTotal.WithLabelValues(BackendRedis).Inc()
		return Decision{}, fmt.Errorf("redis rate limit pipeline: %w", err)
	}

	count := int(incr.Val())
	ttl := pttl.Val()

	// A fresh counter, or one that lost its expiry, starts a new window.
	if count == 1 || ttl < 0 {
		if err := l.redis.PExpire(ctx, redisKey, l.cfg.Window).Err(); err != nil {
			rateLimitErrorsTotal.WithLabelValues(BackendRedis).Inc()
			return Decision{}, fmt.Errorf("redis rate limit expire: %w", err)
		}
		ttl = l.cfg.Window
	}

	d := decide(l.cfg, count, time.Now().Add(ttl))
	record(BackendRedis, d)

	if !d.Allowed {
		l.logger.Debug().
			Str("key", key).
			Int("count", count).
			Dur("reset_in", ttl).
			Msg("Rate limit window exhausted")
	}

	return d, nil
}

// Reset deletes the window of key.
func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, RedisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
