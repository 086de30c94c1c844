package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNilFetch is returned when GetData is called without a fetch function.
	ErrNilFetch = errors.New("fetch function is required")

	// ErrTypeMismatch indicates a cached payload is not of the requested type.
	ErrTypeMismatch = errors.New("cached value has unexpected type")
)

// FetchFunc loads the payload for a missing or expired key.
type FetchFunc func(ctx context.Context) (any, error)

// Result is the payload returned by GetData.
type Result struct {
	Data any

	// RemainingTTL is the number of seconds until the entry expires.
	RemainingTTL int
}

// Manager is an in-memory key to entry store.
type Manager struct {
	mu      sync.Mutex
	entries map[string]*Entry
	policy  TTLPolicy
	now     func() time.Time
	logger  zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates an empty cache.
func NewManager(policy TTLPolicy, opts ...Option) *Manager {
	m := &Manager{
		entries: make(map[string]*Entry),
		policy:  policy,
		now:     time.Now,
		logger:  log.With().Str("component", "result-cache").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetData returns the fresh entry for key or fetches, stores and returns a
// new one.
func (m *Manager) GetData(ctx context.Context, key string, fetch FetchFunc) (Result, error) {
	if fetch == nil {
		return Result{}, ErrNilFetch
	}

	logger := logging.FromContext(ctx, m.logger).With().Str("cache_key", key).Logger()
	resource := resourceOf(key)

	if res, ok := m.lookup(key); ok {
		CacheHits.WithLabelValues(resource).Inc()
		logger.Debug().Int("ttl_remaining", res.RemainingTTL).Msg("Returning cached response")
		return res, nil
	}

	CacheMisses.WithLabelValues(resource).Inc()

	data, err := fetch(ctx)
	if err != nil {
		return Result{}, err
	}

	ttl := m.policy.For(key, data)
	entry := &Entry{Key: key, Data: data, CreatedAt: m.now(), TTL: ttl}

	m.mu.Lock()
	m.entries[key] = entry
	size := len(m.entries)
	m.mu.Unlock()

	CacheEntries.Set(float64(size))
	logger.Debug().Dur("ttl", ttl).Msg("Stored new data in cache")

	return Result{Data: data, RemainingTTL: int(ttl / time.Second)}, nil
}

func (m *Manager) lookup(key string) (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Result{}, false
	}
	now := m.now()
	if entry.IsExpired(now) {
		return Result{}, false
	}
	return Result{Data: entry.Data, RemainingTTL: entry.Remaining(now)}, true
}

// Fetch is GetData with a typed payload.
func Fetch[T any](ctx context.Context, m *Manager, key string, fetch func(context.Context) (T, error)) (T, int, error) {
	var zero T
	if fetch == nil {
		return zero, 0, ErrNilFetch
	}

	res, err := m.GetData(ctx, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, 0, err
	}

	v, ok := res.Data.(T)
	if !ok {
		return zero, 0, fmt.Errorf("%w: key %s holds %T", ErrTypeMismatch, key, res.Data)
	}
	return v, res.RemainingTTL, nil
}

// Clear removes all entries and reports whether any were present.
func (m *Manager) Clear(ctx context.Context) bool {
	m.mu.Lock()
	had := len(m.entries) > 0
	m.entries = make(map[string]*Entry)
	m.mu.Unlock()

	CacheClears.Inc()
	CacheEntries.Set(0)
	logger := logging.FromContext(ctx, m.logger)
	logger.Info().Bool("had_entries", had).Msg("Cache cleared")

	return had
}

// Sweep deletes expired entries and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if e.IsExpired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	size := len(m.entries)
	m.mu.Unlock()

	if removed > 0 {
		CacheEvictions.Add(float64(removed))
		m.logger.Debug().Int("removed", removed).Int("remaining", size).Msg("Swept expired cache entries")
	}
	CacheEntries.Set(float64(size))

	return removed
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
