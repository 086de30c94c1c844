// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// FileConfig configures the optional rotating log file.
type FileConfig struct {
	// Path of the log file. Empty disables file output.
	Path string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// File additionally writes JSON lines to a rotating file.
	File FileConfig

	// Service and Environment are attached to every entry when set.
	Service     string
	Environment string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "lottery-proxy",
	}
}

var (
	fileMu   sync.Mutex
	fileSink *lumberjack.Logger
)

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var output io.Writer = cfg.Output
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: cfg.Output}
	}

	if sink := openFileSink(cfg.File); sink != nil {
		// The file always receives JSON, regardless of Pretty.
		output = zerolog.MultiLevelWriter(output, sink)
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Environment != "" {
		ctx = ctx.Str("env", cfg.Environment)
	}
	logger := ctx.Logger()

	log.Logger = logger

	return logger
}

// openFileSink replaces the current rotating file, if any.
func openFileSink(cfg FileConfig) *lumberjack.Logger {
	fileMu.Lock()
	defer fileMu.Unlock()

	if fileSink != nil {
		_ = fileSink.Close()
		fileSink = nil
	}
	if cfg.Path == "" {
		return nil
	}

	fileSink = &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    orDefault(cfg.MaxSizeMB, 50),
		MaxBackups: orDefault(cfg.MaxBackups, 5),
		MaxAge:     orDefault(cfg.MaxAgeDays, 14),
		Compress:   cfg.Compress,
	}
	return fileSink
}

// Close flushes and closes the rotating log file.
func Close() error {
	fileMu.Lock()
	defer fileMu.Unlock()

	if fileSink == nil {
		return nil
	}
	err := fileSink.Close()
	fileSink = nil
	return err
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug", "trace":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error", "fatal":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache operations (hit/miss, key, TTL)
//   - Normalization details (available fields, item counts, prize types)
//   - Upstream request flow
//
// Info: Normal operation events
//   - Successful upstream fetches
//   - Cache cleared
//   - Client errors reported to callers (4xx)
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Malformed prize categories skipped during normalization
//   - Upstream access denied (403)
//   - Retry attempts
//   - Inbound rate limit rejections
//
// Error: Error conditions requiring attention
//   - Upstream failures after retries
//   - Normalization failures of a whole payload
//   - Internal server errors
//
// Context Fields:
//   - request_id: X-Request-ID of the inbound request
//   - operation: service operation name
//   - endpoint: upstream endpoint path
//   - draw_id: lottery draw identifier
//   - cache_key / ttl: cache entry key and lifetime
//   - status_code: HTTP status code
//   - error_class: error classification (client, server, network)
