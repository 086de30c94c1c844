package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by resource
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_cache_hits_total",
			Help: "Total number of result cache hits",
		},
		[]string{"resource"},
	)

	// CacheMisses tracks cache misses (absent or expired) by resource
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_cache_misses_total",
			Help: "Total number of result cache misses",
		},
		[]string{"resource"},
	)

	// CacheEntries tracks the number of stored entries
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lottery_cache_entries",
			Help: "Current number of entries in the result cache",
		},
	)

	// CacheClears tracks explicit cache clears
	CacheClears = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_cache_clears_total",
			Help: "Total number of result cache clears",
		},
	)

	// CacheEvictions tracks expired entries removed by Sweep
	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_cache_evictions_total",
			Help: "Total number of expired entries removed by sweeps",
		},
	)
)
