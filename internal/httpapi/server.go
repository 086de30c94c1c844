// Package httpapi exposes the lottery operations over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/loteria-results-proxy/pkg/lottery"
	"github.com/Sternrassler/loteria-results-proxy/pkg/metrics"
	"github.com/Sternrassler/loteria-results-proxy/pkg/prize"
	"github.com/Sternrassler/loteria-results-proxy/pkg/ratelimit"
)

// APIPrefix is the path prefix of the lottery routes.
const APIPrefix = "/api/lottery"

// LotteryService is the set of operations served by the API.
type LotteryService interface {
	GetCelebrationState(ctx context.Context) (json.RawMessage, error)
	GetLNACConfig(ctx context.Context) (json.RawMessage, error)
	GetTicketInfo(ctx context.Context, drawID string) (json.RawMessage, error)
	GetDrawResults(ctx context.Context, drawID string) (lottery.Cached[*prize.DrawResult], error)
	GetRealtimeResults(ctx context.Context) (lottery.Cached[*prize.DrawResult], error)
	GetCurrentResults(ctx context.Context, drawID string) (lottery.Cached[*prize.DrawResult], error)
	CheckTicketNumber(ctx context.Context, drawID, ticketNumber string) (lottery.TicketResult, error)
	ClearCache(ctx context.Context) bool
}

// ReadinessFunc reports whether a dependency is reachable.
type ReadinessFunc func(ctx context.Context) error

// Options configures the API.
type Options struct {
	Service LotteryService

	// Limiter admits API requests per client. Nil disables rate limiting.
	Limiter ratelimit.Limiter

	// Ready is consulted by GET /ready. Nil reports ready.
	Ready ReadinessFunc

	// DefaultDrawID is used by GET /results without a drawId query.
	DefaultDrawID string

	// Development adds error context to error responses.
	Development bool

	// RequestTimeout bounds the work done for one API request. It must stay
	// below the HTTP server's write timeout. Zero disables the deadline.
	RequestTimeout time.Duration
}

// Server routes HTTP requests to the lottery service.
type Server struct {
	opts   Options
	router *mux.Router
	logger zerolog.Logger
}

// New creates the API server.
func New(opts Options) (*Server, error) {
	if opts.Service == nil {
		return nil, errors.New("lottery service is required")
	}

	s := &Server{
		opts:   opts,
		router: mux.NewRouter(),
		logger: log.With().Str("component", "httpapi").Logger(),
	}
	s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.requestID, s.observe, s.recoverPanic)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix(APIPrefix).Subrouter()
	if s.opts.Limiter != nil {
		api.Use(s.rateLimit)
	}
	if s.opts.RequestTimeout > 0 {
		api.Use(s.deadline)
	}

	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/ticket/{drawId}", s.handleTicketInfo).Methods(http.MethodGet)
	api.HandleFunc("/results", s.handleCurrentResults).Methods(http.MethodGet)
	api.HandleFunc("/results/{drawId}", s.handleResults).Methods(http.MethodGet)
	api.HandleFunc("/realtime", s.handleRealtime).Methods(http.MethodGet)
	api.HandleFunc("/check/{drawId}/{ticketNumber}", s.handleCheck).Methods(http.MethodGet)
	api.HandleFunc("/clearcache", s.handleClearCache).Methods(http.MethodGet)

	// Unmatched requests bypass router middleware.
	r.NotFoundHandler = s.requestID(http.HandlerFunc(s.handleNotFound))
	r.MethodNotAllowedHandler = s.requestID(http.HandlerFunc(s.handleMethodNotAllowed))
}
