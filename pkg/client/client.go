// Package client provides the HTTP client for the lottery results website
// with outbound throttling, retries and typed upstream errors.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/loteria-results-proxy/pkg/apperr"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public lottery results website.
	DefaultBaseURL = "https://www.loteriasyapuestas.es"

	// DefaultUserAgent identifies the proxy to the upstream.
	DefaultUserAgent = "Mozilla/5.0 (compatible; LoteriaResultsProxy/1.0)"

	acceptHeader         = "application/json, text/javascript, */*; q=0.01"
	acceptLanguageHeader = "es-ES,es;q=0.9,en;q=0.8"

	// maxBodyBytes bounds how much of an upstream body is read.
	maxBodyBytes = 10 << 20

	previewLength = 100
)

// Operation names used in logs, metrics and error context.
const (
	OpCelebrationState = "celebration-state"
	OpLNACConfig       = "lnac-config"
	OpRealtimeResults  = "realtime-results"
	OpTicketInfo       = "ticket-info"
	OpDrawResults      = "draw-results"
)

// Endpoints holds the upstream resource paths.
type Endpoints struct {
	CelebrationState string
	LNACConfig       string
	RealtimeResults  string
	CheckTicket      string
	DrawResults      string
}

// DefaultEndpoints returns the paths used by the public website.
func DefaultEndpoints() Endpoints {
	return Endpoints{
		CelebrationState: "/f/loterias/estaticos/json/estadoCelebracionLNAC.json",
		LNACConfig:       "/f/loterias/estaticos/json/configuracionLNAC.json",
		RealtimeResults:  "/servicios/resultados1",
		CheckTicket:      "/servicios/premioDecimoWeb",
		DrawResults:      "/servicios/resultados2",
	}
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the upstream, without trailing slash.
	BaseURL string

	// User-Agent header sent with every request.
	UserAgent string

	Endpoints Endpoints

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration

	// Outbound throttling: requests per second and burst.
	RateLimit float64
	Burst     int

	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Endpoints: DefaultEndpoints(),
		Timeout:   30 * time.Second,
		RateLimit: 5,
		Burst:     10,
		Retry:     DefaultRetryConfig(),
	}
}

// Client fetches raw JSON documents from the upstream.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	config     Config
	logger     zerolog.Logger
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.RateLimit <= 0 {
		return nil, fmt.Errorf("rate_limit must be > 0 (got %v)", cfg.RateLimit)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Endpoints == (Endpoints{}) {
		cfg.Endpoints = DefaultEndpoints()
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		config:  cfg,
		logger:  log.With().Str("component", "upstream-client").Logger(),
	}, nil
}

// CelebrationState fetches whether a draw is being conducted.
func (c *Client) CelebrationState(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, OpCelebrationState, c.config.Endpoints.CelebrationState)
}

// LNACConfig fetches the draw configuration document.
func (c *Client) LNACConfig(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, OpLNACConfig, c.config.Endpoints.LNACConfig)
}

// RealtimeResults fetches the live results feed.
func (c *Client) RealtimeResults(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, OpRealtimeResults, c.config.Endpoints.RealtimeResults)
}

// TicketInfo fetches the prize list used for ticket checks of a draw.
func (c *Client) TicketInfo(ctx context.Context, drawID string) (json.RawMessage, error) {
	return c.get(ctx, OpTicketInfo, withDrawID(c.config.Endpoints.CheckTicket, drawID))
}

// DrawResults fetches the final results of a draw.
func (c *Client) DrawResults(ctx context.Context, drawID string) (json.RawMessage, error) {
	return c.get(ctx, OpDrawResults, withDrawID(c.config.Endpoints.DrawResults, drawID))
}

func withDrawID(path, drawID string) string {
	return path + "?idsorteo=" + url.QueryEscape(drawID)
}

// get issues a GET for endpoint with throttling and retries. Returned
// errors always carry an *apperr.Error.
func (c *Client) get(ctx context.Context, operation, endpoint string) (json.RawMessage, error) {
	logger := logging.FromContext(ctx, c.logger).With().Str("operation", operation).Logger()
	ectx := apperr.Context{
		Operation: operation,
		Endpoint:  endpoint,
		URL:       c.config.BaseURL + endpoint,
		RequestID: logging.RequestID(ctx),
	}

	startTime := time.Now()
	defer func() {
		upstreamRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
	}()

	logger.Debug().Str("url", ectx.URL).Msg("Making API request")

	var body []byte
	err := retryWithBackoff(ctx, c.config.Retry, logger, func() (ErrorClass, error) {
		var (
			class ErrorClass
			err   error
		)
		body, class, err = c.attempt(ctx, ectx, logger)
		if err != nil {
			label := string(class)
			if label == "" {
				label = "other"
			}
			upstreamErrorsTotal.WithLabelValues(label).Inc()
		}
		return class, err
	})
	if err != nil {
		if appErr, ok := apperr.As(err); !ok {
			err = apperr.External(transportReason(err), "external API request failed", ectx, err)
		} else if appErr.Reason != apperr.ReasonTimeout && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = apperr.External(apperr.ReasonTimeout, "external API request timed out", ectx, err)
		}
		logger.Error().Err(err).Msg("API request failed")
		return nil, err
	}

	logger.Info().Msgf("API request completed successfully: %s", operation)
	return json.RawMessage(body), nil
}

// attempt performs a single request.
func (c *Client) attempt(ctx context.Context, ectx apperr.Context, logger zerolog.Logger) ([]byte, ErrorClass, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		upstreamRequestsTotal.WithLabelValues(ectx.Operation, "throttled").Inc()
		reason := apperr.ReasonTimeout
		if errors.Is(ctx.Err(), context.Canceled) {
			reason = apperr.ReasonNetwork
		}
		return nil, "", apperr.External(reason, "outbound throttle wait aborted", ectx, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ectx.URL, nil)
	if err != nil {
		return nil, "", apperr.Internal("create upstream request", ectx, err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Language", acceptLanguageHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(ectx.Operation, "network_error").Inc()
		return nil, ErrorClassNetwork, apperr.External(transportReason(err), "external API request failed", ectx, err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		upstreamRequestsTotal.WithLabelValues(ectx.Operation, "network_error").Inc()
		return nil, ErrorClassNetwork, apperr.External(transportReason(err), "read upstream body", ectx, err)
	}

	status := strconv.Itoa(resp.StatusCode)
	upstreamRequestsTotal.WithLabelValues(ectx.Operation, status).Inc()

	logger.Debug().
		Int("status_code", resp.StatusCode).
		Str("response_preview", apperr.Truncate(string(text), previewLength)).
		Msg("API response received")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		ectx.UpstreamStatus = resp.StatusCode
		ectx.Body = string(text)
		message := fmt.Sprintf("External API error: status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusForbidden {
			logger.Warn().Int("status_code", resp.StatusCode).Msg("Access denied by external API")
			message = "Access denied by external API"
		}
		return nil, classifyStatus(resp.StatusCode), apperr.External(apperr.ReasonBadStatus, message, ectx, nil)
	}

	if !json.Valid(text) {
		ectx.Body = string(text)
		return nil, ErrorClassPayload, apperr.External(apperr.ReasonBadPayload,
			"Invalid JSON response from external API", ectx, errors.New("body is not valid JSON"))
	}

	return text, "", nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
