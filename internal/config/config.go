// Package config loads the proxy configuration from defaults, an optional
// YAML file, an optional .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/Sternrassler/loteria-results-proxy/pkg/cache"
	"github.com/Sternrassler/loteria-results-proxy/pkg/client"
	"github.com/Sternrassler/loteria-results-proxy/pkg/logging"
	"github.com/Sternrassler/loteria-results-proxy/pkg/ratelimit"
)

// EnvPrefix is prepended to every configuration key looked up in the
// environment, e.g. LOTTERY_SERVER_PORT for server.port.
const EnvPrefix = "LOTTERY"

// Environment names.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Lottery   LotteryConfig   `mapstructure:"lottery"`
	Cache     CacheConfig     `mapstructure:"cache"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// UpstreamConfig holds the lottery website client configuration
type UpstreamConfig struct {
	BaseURL        string          `mapstructure:"base_url"`
	UserAgent      string          `mapstructure:"user_agent"`
	Timeout        time.Duration   `mapstructure:"timeout"`
	RateLimit      float64         `mapstructure:"rate_limit"`
	Burst          int             `mapstructure:"burst"`
	MaxRetries     int             `mapstructure:"max_retries"`
	InitialBackoff time.Duration   `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration   `mapstructure:"max_backoff"`
	Endpoints      EndpointsConfig `mapstructure:"endpoints"`
}

// EndpointsConfig holds the upstream resource paths
type EndpointsConfig struct {
	CelebrationState string `mapstructure:"celebration_state"`
	LNACConfig       string `mapstructure:"lnac_config"`
	RealtimeResults  string `mapstructure:"realtime_results"`
	CheckTicket      string `mapstructure:"check_ticket"`
	DrawResults      string `mapstructure:"draw_results"`
}

// LotteryConfig holds domain defaults
type LotteryConfig struct {
	DefaultDrawID string `mapstructure:"default_draw_id"`
}

// CacheConfig holds result cache configuration
type CacheConfig struct {
	DefaultTTLSeconds int    `mapstructure:"default_ttl_seconds"`
	TicketTTLSeconds  int    `mapstructure:"ticket_ttl_seconds"`
	LiveTTLSeconds    int    `mapstructure:"live_ttl_seconds"`
	SweepSchedule     string `mapstructure:"sweep_schedule"`
}

// RateLimitConfig holds inbound rate limit configuration
type RateLimitConfig struct {
	Window      time.Duration `mapstructure:"window"`
	MaxRequests int           `mapstructure:"max_requests"`
}

// RedisConfig holds the optional Redis connection. An empty address keeps
// rate limit windows in process memory.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string            `mapstructure:"level"`
	Pretty bool              `mapstructure:"pretty"`
	File   LoggingFileConfig `mapstructure:"file"`
}

// LoggingFileConfig holds the rotating log file settings
type LoggingFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// legacyEnv maps configuration keys to the environment names used by
// existing deployments.
var legacyEnv = map[string]string{
	"server.port":               "PORT",
	"server.env":                "NODE_ENV",
	"upstream.base_url":         "API_BASE_URL",
	"lottery.default_draw_id":   "DEFAULT_DRAW_ID",
	"cache.default_ttl_seconds": "CACHE_TTL",
	"rate_limit.max_requests":   "RATE_LIMIT_MAX",
	"redis.addr":                "REDIS_URL",
	"logging.level":             "LOG_LEVEL",
	"logging.pretty":            "LOG_PRETTY",
}

// Load reads configuration from an optional file and the environment. A
// .env file in the working directory is loaded first when present; variables
// already set in the process take precedence over it.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		envKey := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.Env = strings.ToLower(cfg.Server.Env)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	endpoints := client.DefaultEndpoints()
	retry := client.DefaultRetryConfig()

	// Server defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.env", EnvDevelopment)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.request_timeout", "45s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// Upstream defaults
	v.SetDefault("upstream.base_url", client.DefaultBaseURL)
	v.SetDefault("upstream.user_agent", client.DefaultUserAgent)
	v.SetDefault("upstream.timeout", "10s")
	v.SetDefault("upstream.rate_limit", 5.0)
	v.SetDefault("upstream.burst", 10)
	v.SetDefault("upstream.max_retries", retry.MaxAttempts)
	v.SetDefault("upstream.initial_backoff", retry.InitialBackoff.String())
	v.SetDefault("upstream.max_backoff", retry.MaxBackoff.String())
	v.SetDefault("upstream.endpoints.celebration_state", endpoints.CelebrationState)
	v.SetDefault("upstream.endpoints.lnac_config", endpoints.LNACConfig)
	v.SetDefault("upstream.endpoints.realtime_results", endpoints.RealtimeResults)
	v.SetDefault("upstream.endpoints.check_ticket", endpoints.CheckTicket)
	v.SetDefault("upstream.endpoints.draw_results", endpoints.DrawResults)

	// Lottery defaults
	v.SetDefault("lottery.default_draw_id", "1259409102")

	// Cache defaults
	v.SetDefault("cache.default_ttl_seconds", 1800)
	v.SetDefault("cache.ticket_ttl_seconds", 300)
	v.SetDefault("cache.live_ttl_seconds", 30)
	v.SetDefault("cache.sweep_schedule", "@every 5m")

	// Rate limit defaults
	v.SetDefault("rate_limit.window", ratelimit.DefaultWindow.String())
	v.SetDefault("rate_limit.max_requests", ratelimit.DefaultMaxRequests)

	// Redis defaults
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)
	v.SetDefault("logging.file.path", "")
	v.SetDefault("logging.file.max_size_mb", 100)
	v.SetDefault("logging.file.max_backups", 5)
	v.SetDefault("logging.file.max_age_days", 28)
	v.SetDefault("logging.file.compress", true)
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch c.Server.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("server.env must be one of: development, production, test")
	}
	if c.Server.RequestTimeout <= 0 || c.Server.RequestTimeout >= c.Server.WriteTimeout {
		return fmt.Errorf("server.request_timeout must be positive and below server.write_timeout (%s)", c.Server.WriteTimeout)
	}

	// Upstream
	u, err := url.Parse(c.Upstream.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("upstream.base_url must be an absolute URL")
	}
	if c.Upstream.UserAgent == "" {
		return fmt.Errorf("upstream.user_agent is required")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Upstream.RateLimit <= 0 {
		return fmt.Errorf("upstream.rate_limit must be positive")
	}
	if c.Upstream.MaxRetries < 1 {
		return fmt.Errorf("upstream.max_retries must be at least 1")
	}
	if budget := c.Upstream.Timeout * time.Duration(c.Upstream.MaxRetries); budget >= c.Server.RequestTimeout {
		return fmt.Errorf("upstream.timeout * upstream.max_retries (%s) must be below server.request_timeout (%s)",
			budget, c.Server.RequestTimeout)
	}

	// Lottery
	if !isDigits(c.Lottery.DefaultDrawID, 10) {
		return fmt.Errorf("lottery.default_draw_id must be exactly 10 digits")
	}

	// Cache
	if c.Cache.DefaultTTLSeconds < 1 || c.Cache.TicketTTLSeconds < 1 || c.Cache.LiveTTLSeconds < 1 {
		return fmt.Errorf("cache ttl values must be at least 1 second")
	}
	if c.Cache.SweepSchedule != "" {
		if _, err := cron.ParseStandard(c.Cache.SweepSchedule); err != nil {
			return fmt.Errorf("cache.sweep_schedule is invalid: %w", err)
		}
	}

	// Rate limit
	if c.RateLimit.Window < time.Second {
		return fmt.Errorf("rate_limit.window must be at least 1 second")
	}
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rate_limit.max_requests must be at least 1")
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	return nil
}

// IsDevelopment reports whether error responses may carry details.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == EnvDevelopment
}

// Addr returns the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// ClientConfig returns the upstream client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(strings.TrimRight(c.Upstream.BaseURL, "/"), c.Upstream.UserAgent)
	cfg.Timeout = c.Upstream.Timeout
	cfg.RateLimit = c.Upstream.RateLimit
	cfg.Burst = c.Upstream.Burst
	cfg.Retry.MaxAttempts = c.Upstream.MaxRetries
	if c.Upstream.InitialBackoff > 0 {
		cfg.Retry.InitialBackoff = c.Upstream.InitialBackoff
	}
	if c.Upstream.MaxBackoff > 0 {
		cfg.Retry.MaxBackoff = c.Upstream.MaxBackoff
	}
	cfg.Endpoints = client.Endpoints{
		CelebrationState: c.Upstream.Endpoints.CelebrationState,
		LNACConfig:       c.Upstream.Endpoints.LNACConfig,
		RealtimeResults:  c.Upstream.Endpoints.RealtimeResults,
		CheckTicket:      c.Upstream.Endpoints.CheckTicket,
		DrawResults:      c.Upstream.Endpoints.DrawResults,
	}
	return cfg
}

// TTLPolicy returns the result cache lifetimes.
func (c *Config) TTLPolicy() cache.TTLPolicy {
	return cache.TTLPolicy{
		Default: time.Duration(c.Cache.DefaultTTLSeconds) * time.Second,
		Ticket:  time.Duration(c.Cache.TicketTTLSeconds) * time.Second,
		Live:    time.Duration(c.Cache.LiveTTLSeconds) * time.Second,
	}
}

// RateLimitConfig returns the inbound admission window.
func (c *Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{Window: c.RateLimit.Window, MaxRequests: c.RateLimit.MaxRequests}
}

// LoggingConfig returns the logger setup for this configuration.
func (c *Config) LoggingConfig() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Logging.Level)
	cfg.Pretty = c.Logging.Pretty
	cfg.Environment = c.Server.Env
	cfg.File = logging.FileConfig{
		Path:       c.Logging.File.Path,
		MaxSizeMB:  c.Logging.File.MaxSizeMB,
		MaxBackups: c.Logging.File.MaxBackups,
		MaxAgeDays: c.Logging.File.MaxAgeDays,
		Compress:   c.Logging.File.Compress,
	}
	return cfg
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
