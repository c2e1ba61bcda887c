// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
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

// Component names used in the "component" field.
const (
	ComponentServer  = "server"
	ComponentProxy   = "proxy"
	ComponentCache   = "cache"
	ComponentJanitor = "cache-janitor"
	ComponentClient  = "pncp-client"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// ServiceName is stamped on every log line.
const ServiceName = "pncp-proxy"

// Setup configures the global zerolog logger and returns it.
// A nil Output writes to stderr.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.TimeOnly}
	}

	log.Logger = zerolog.New(output).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()

	return log.Logger
}

// parseLevel maps a configured level onto zerolog. Unknown or empty levels
// fall back to info.
func parseLevel(level LogLevel) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(string(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log levels used by the proxy:
//
// Debug: cache hits with ttl_left, completed fetches, dropped expired
// entries, janitor purges, successful upstream calls, rejected invalid
// requests, clients that left before their response.
//
// Info: access log lines, janitor start, upstream success after a retry,
// server start and shutdown.
//
// Warn: failed upstream calls, retry attempts, 5xx access log lines.
//
// Error: exhausted retries, unclassified proxy failures, envelope encoding
// failures, recovered panics.
//
// Common fields: service, component, request_id, key, url, status_code,
// result, error_class, duration.
