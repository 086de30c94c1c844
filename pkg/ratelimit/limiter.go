// Package ratelimit implements fixed-window admission control per client key.
// Windows are kept in process memory or, for deployments with several
// replicas, in Redis.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Defaults for inbound admission.
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 100

	// RedisKeyPrefix namespaces window counters in Redis.
	RedisKeyPrefix = "lottery:rate_limit:"
)

// Backend names used as metric labels.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Prometheus metrics for rate limit decisions.
var (
	rateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_rate_limit_checks_total",
		Help: "Total number of rate limit checks by backend",
	}, []string{"backend"})

	rateLimitRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the rate limiter by backend",
	}, []string{"backend"})

	rateLimitErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lottery_rate_limit_errors_total",
		Help: "Total number of rate limit backend failures",
	}, []string{"backend"})
)

// Config holds the window settings.
type Config struct {
	// Window is the length of one counting window.
	Window time.Duration

	// MaxRequests admitted per key and window.
	MaxRequests int
}

// DefaultConfig returns 100 requests per minute.
func DefaultConfig() Config {
	return Config{Window: DefaultWindow, MaxRequests: DefaultMaxRequests}
}

func (c Config) normalized() Config {
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.MaxRequests <= 0 {
		c.MaxRequests = DefaultMaxRequests
	}
	return c
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// ResetSeconds returns the whole seconds until the window resets, rounded up.
func (d Decision) ResetSeconds(now time.Time) int {
	left := d.ResetAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Limiter decides whether a request identified by key is admitted.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(cfg Config, count int, resetAt time.Time) Decision {
	remaining := cfg.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= cfg.MaxRequests,
		Limit:     cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func record(backend string, d Decision) {
	rateLimitChecksTotal.WithLabelValues(backend).Inc()
	if !d.Allowed {
		rateLimitRejectionsTotal.WithLabelValues(backend).Inc()
	}
}
