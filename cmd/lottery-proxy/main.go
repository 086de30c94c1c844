package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/loteria-results-proxy/internal/config"
	"github.com/Sternrassler/loteria-results-proxy/internal/httpapi"
	"github.com/Sternrassler/loteria-results-proxy/internal/janitor"
	"github.com/Sternrassler/loteria-results-proxy/pkg/cache"
	"github.com/Sternrassler/loteria-results-proxy/pkg/client"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/Sternrassler/loteria-results-proxy/pkg/lottery"
	"github.com/Sternrassler/loteria-results-proxy/pkg/ratelimit"
)

var configPath = flag.String("config", "", "Path to an optional YAML configuration file")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(cfg.LoggingConfig())
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("Server failed")
		logging.Close()
		os.Exit(1)
	}
}

// app holds the wired components of one server process.
type app struct {
	cfg         *config.Config
	upstream    *client.Client
	resultCache *cache.Manager
	limiter     ratelimit.Limiter
	janitor     *janitor.Janitor
	redis       *redis.Client
	handler     http.Handler
}

// newApp wires all components from cfg. A configured Redis must be reachable.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	upstream, err := client.New(cfg.ClientConfig())
	if err != nil {
		return nil, fmt.Errorf("create upstream client: %w", err)
	}
	a.upstream = upstream

	a.resultCache = cache.NewManager(cfg.TTLPolicy())

	svc, err := lottery.NewService(upstream, a.resultCache)
	if err != nil {
		return nil, fmt.Errorf("create lottery service: %w", err)
	}

	a.janitor, err = janitor.New(cfg.Cache.SweepSchedule)
	if err != nil {
		return nil, err
	}
	if err := a.janitor.Add("result-cache", a.resultCache.Sweep); err != nil {
		return nil, err
	}

	var ready httpapi.ReadinessFunc
	if cfg.Redis.Addr != "" {
		a.redis, err = newRedisClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.redis.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis, rate limit windows are shared")

		a.limiter = ratelimit.NewRedisLimiter(a.redis, cfg.RateLimitConfig(), logging.NewLogger("ratelimit"))
		ready = func(ctx context.Context) error { return a.redis.Ping(ctx).Err() }
	} else {
		mem := ratelimit.NewMemoryLimiter(cfg.RateLimitConfig())
		if err := a.janitor.Add("rate-limit", mem.Cleanup); err != nil {
			return nil, err
		}
		a.limiter = mem
	}

	server, err := httpapi.New(httpapi.Options{
		Service:        svc,
		Limiter:        a.limiter,
		Ready:          ready,
		DefaultDrawID:  cfg.Lottery.DefaultDrawID,
		Development:    cfg.IsDevelopment(),
		RequestTimeout: cfg.Server.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	a.handler = server.Handler()

	return a, nil
}

// Close releases connections held by the app.
func (a *app) Close() {
	a.upstream.Close()
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// run serves HTTP until ctx is cancelled, then shuts down gracefully.
func run(ctx context.Context, cfg *config.Config) error {
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	a.janitor.Start()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("env", cfg.Server.Env).
			Str("upstream", cfg.Upstream.BaseURL).
			Str("default_draw_id", cfg.Lottery.DefaultDrawID).
			Msg("Starting lottery proxy server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := a.janitor.Stop(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Janitor did not stop in time")
	}

	log.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Server stopped")
	return nil
}

// newRedisClient accepts a redis:// URL or a host:port address.
func newRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if strings.HasPrefix(cfg.Addr, "redis://") || strings.HasPrefix(cfg.Addr, "rediss://") {
		opts, err := redis.ParseURL(cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}
