// Package lottery combines the upstream client, the prize normalizer and the
// result cache into the operations exposed by the proxy.
package lottery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/loteria-results-proxy/pkg/cache"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/Sternrassler/loteria-results-proxy/pkg/prize"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// Upstream is the subset of the upstream client used by the service.
type Upstream interface {
	CelebrationState(ctx context.Context) (json.RawMessage, error)
	LNACConfig(ctx context.Context) (json.RawMessage, error)
	RealtimeResults(ctx context.Context) (json.RawMessage, error)
	TicketInfo(ctx context.Context, drawID string) (json.RawMessage, error)
	DrawResults(ctx context.Context, drawID string) (json.RawMessage, error)
}

// Cached is a payload served from the result cache.
type Cached[T any] struct {
	Data T

	// RemainingTTL is the number of seconds the payload stays cached.
	RemainingTTL int
}

// Service implements the lottery operations.
type Service struct {
	upstream Upstream
	cache    *cache.Manager
	logger   zerolog.Logger
}

// NewService creates a service. Both collaborators are required.
func NewService(upstream Upstream, resultCache *cache.Manager) (*Service, error) {
	if upstream == nil {
		return nil, fmt.Errorf("upstream client is required")
	}
	if resultCache == nil {
		return nil, fmt.Errorf("result cache is required")
	}
	return &Service{
		upstream: upstream,
		cache:    resultCache,
		logger:   log.With().Str("component", "lottery-service").Logger(),
	}, nil
}

// GetCelebrationState returns the live celebration state, uncached.
func (s *Service) GetCelebrationState(ctx context.Context) (json.RawMessage, error) {
	return s.upstream.CelebrationState(ctx)
}

// GetLNACConfig returns the draw configuration document, uncached.
func (s *Service) GetLNACConfig(ctx context.Context) (json.RawMessage, error) {
	return s.upstream.LNACConfig(ctx)
}

// GetTicketInfo returns the raw prize list of a draw, uncached.
func (s *Service) GetTicketInfo(ctx context.Context, drawID string) (json.RawMessage, error) {
	return s.upstream.TicketInfo(ctx, drawID)
}

// GetDrawResults returns the normalized final results of a draw.
func (s *Service) GetDrawResults(ctx context.Context, drawID string) (Cached[*prize.DrawResult], error) {
	return s.cachedResults(ctx, cache.DrawResultsKey(drawID), func(ctx context.Context) (*prize.DrawResult, error) {
		return s.fetchNormalized(ctx, func(ctx context.Context) (json.RawMessage, error) {
			return s.upstream.DrawResults(ctx, drawID)
		})
	})
}

// GetRealtimeResults returns the normalized live results feed.
func (s *Service) GetRealtimeResults(ctx context.Context) (Cached[*prize.DrawResult], error) {
	return s.cachedResults(ctx, cache.RealtimeResultsKey(), func(ctx context.Context) (*prize.DrawResult, error) {
		return s.fetchNormalized(ctx, s.upstream.RealtimeResults)
	})
}

// GetCurrentResults serves the realtime feed while a draw is being
// conducted and the final results of drawID otherwise. The choice is made
// on every cache miss.
func (s *Service) GetCurrentResults(ctx context.Context, drawID string) (Cached[*prize.DrawResult], error) {
	return s.cachedResults(ctx, cache.CurrentResultsKey(drawID), func(ctx context.Context) (*prize.DrawResult, error) {
		logger := logging.FromContext(ctx, s.logger)

		state, err := s.upstream.CelebrationState(ctx)
		if err != nil {
			return nil, err
		}
		live := celebrationInProgress(state)
		logger.Debug().Bool("celebration_in_progress", live).Str("draw_id", drawID).Msg("Selecting results source")

		if live {
			res, err := s.fetchNormalized(ctx, s.upstream.RealtimeResults)
			if err != nil || res == nil {
				return res, err
			}
			return res.WithLive(true), nil
		}
		return s.fetchNormalized(ctx, func(ctx context.Context) (json.RawMessage, error) {
			return s.upstream.DrawResults(ctx, drawID)
		})
	})
}

// ClearCache empties the result cache and reports whether it held entries.
func (s *Service) ClearCache(ctx context.Context) bool {
	return s.cache.Clear(ctx)
}

func (s *Service) cachedResults(ctx context.Context, key cache.Key, fetch func(context.Context) (*prize.DrawResult, error)) (Cached[*prize.DrawResult], error) {
	data, ttl, err := cache.Fetch(ctx, s.cache, key.String(), fetch)
	if err != nil {
		return Cached[*prize.DrawResult]{}, err
	}
	return Cached[*prize.DrawResult]{Data: data, RemainingTTL: ttl}, nil
}

// fetchNormalized loads a raw payload and normalizes it before it is stored.
func (s *Service) fetchNormalized(ctx context.Context, load func(context.Context) (json.RawMessage, error)) (*prize.DrawResult, error) {
	raw, err := load(ctx)
	if err != nil {
		return nil, err
	}
	return prize.NormalizeResults(ctx, raw)
}

func celebrationInProgress(state []byte) bool {
	return gjson.GetBytes(state, prize.FieldCelebrationStatus).Type == gjson.True ||
		gjson.GetBytes(state, prize.FieldCelebrationState).Type == gjson.True
}
