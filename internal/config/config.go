// Package config loads the proxy configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// command line flags and environment variables. The result is validated
// before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/Sternrassler/pncp-proxy/pkg/cache"
	"github.com/Sternrassler/pncp-proxy/pkg/client"
	"github.com/Sternrassler/pncp-proxy/pkg/logging"
	"github.com/Sternrassler/pncp-proxy/pkg/proxy"
	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

// ErrHelp is returned by Load when help output was requested and written.
var ErrHelp = arg.ErrHelp

// Config holds every runtime setting.
type Config struct {
	ConfigFile string `yaml:"-" arg:"--config,env:PNCP_PROXY_CONFIG" help:"path to a YAML config file"`

	Listen          string        `yaml:"listen" arg:"--listen,env:LISTEN_ADDR" help:"listen on this address" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" arg:"--shutdown-timeout,env:SHUTDOWN_TIMEOUT" help:"grace period for in-flight requests on shutdown" validate:"gt=0"`
	CORSOrigins     []string      `yaml:"cors_origins" arg:"--cors-origins,env:CORS_ORIGINS" help:"allowed CORS origins" validate:"min=1,dive,required"`

	LogLevel  string `yaml:"log_level" arg:"--log-level,env:LOG_LEVEL" help:"one of debug, info, warn, error" validate:"oneof=debug info warn error"`
	LogPretty bool   `yaml:"log_pretty" arg:"--log-pretty,env:LOG_PRETTY" help:"human readable console logs"`

	BaseURL          string `yaml:"base_url" arg:"--base-url,env:PNCP_BASE_URL" help:"PNCP consulta API base URL" validate:"required,url"`
	DocumentsBaseURL string `yaml:"documents_base_url" arg:"--documents-base-url,env:PNCP_DOCUMENTS_BASE_URL" help:"PNCP documents API base URL" validate:"required,url"`
	UserAgent        string `yaml:"user_agent" arg:"--user-agent,env:PNCP_USER_AGENT" help:"User-Agent sent to PNCP" validate:"required"`
	MaxBodyBytes     int64  `yaml:"max_body_bytes" arg:"--max-body-bytes,env:MAX_BODY_BYTES" help:"largest upstream body accepted" validate:"gt=0"`

	CacheTTL        time.Duration `yaml:"cache_ttl" arg:"--cache-ttl,env:CACHE_TTL" help:"how long responses stay cached" validate:"gt=0"`
	CacheMaxEntries int           `yaml:"cache_max_entries" arg:"--cache-max-entries,env:CACHE_MAX_ENTRIES" help:"cache size cap, 0 for unbounded" validate:"gte=0"`
	JanitorSchedule string        `yaml:"janitor_schedule" arg:"--janitor-schedule,env:JANITOR_SCHEDULE" help:"cron schedule for purging expired entries, empty to disable"`

	TimeoutGeneric      time.Duration `yaml:"timeout_generic" arg:"--timeout-generic,env:TIMEOUT_GENERIC" help:"upstream timeout for passthrough requests" validate:"gt=0"`
	TimeoutContratacoes time.Duration `yaml:"timeout_contratacoes" arg:"--timeout-contratacoes,env:TIMEOUT_CONTRATACOES" help:"upstream timeout for the contratacoes route" validate:"gt=0"`
	TimeoutVeiculos     time.Duration `yaml:"timeout_veiculos" arg:"--timeout-veiculos,env:TIMEOUT_VEICULOS" help:"upstream timeout for the veiculos route" validate:"gt=0"`
	TimeoutDocumentos   time.Duration `yaml:"timeout_documentos" arg:"--timeout-documentos,env:TIMEOUT_DOCUMENTOS" help:"upstream timeout for the documentos route" validate:"gt=0"`

	RetryAttempts   int           `yaml:"retry_attempts" arg:"--retry-attempts,env:RETRY_ATTEMPTS" help:"upstream attempts on timeouts and transport errors" validate:"min=1,max=5"`
	RetryBackoff    time.Duration `yaml:"retry_backoff" arg:"--retry-backoff,env:RETRY_BACKOFF" help:"wait before the first retry" validate:"gte=0"`
	RetryMaxBackoff time.Duration `yaml:"retry_max_backoff" arg:"--retry-max-backoff,env:RETRY_MAX_BACKOFF" help:"longest wait between retries" validate:"gtefield=RetryBackoff"`
}

// Description is shown at the top of the help output.
func (Config) Description() string {
	return "pncp-proxy caches and reshapes the PNCP public procurement API"
}

// Default returns the built-in configuration.
func Default() Config {
	timeouts := proxy.DefaultTimeouts()
	retry := proxy.DefaultRetryConfig()

	return Config{
		Listen:          ":3001",
		ShutdownTimeout: 15 * time.Second,
		CORSOrigins:     []string{"*"},

		LogLevel: string(logging.LevelInfo),

		BaseURL:          translate.DefaultBaseURL,
		DocumentsBaseURL: translate.DefaultDocumentsBaseURL,
		UserAgent:        "pncp-proxy/1.0",
		MaxBodyBytes:     client.DefaultMaxBodyBytes,

		CacheTTL:        cache.DefaultTTL,
		JanitorSchedule: cache.DefaultJanitorSchedule,

		TimeoutGeneric:      timeouts[translate.RouteGeneric],
		TimeoutContratacoes: timeouts[translate.RouteContratacoes],
		TimeoutVeiculos:     timeouts[translate.RouteVeiculos],
		TimeoutDocumentos:   timeouts[translate.RouteDocumentos],

		RetryAttempts:   retry.MaxAttempts,
		RetryBackoff:    retry.InitialBackoff,
		RetryMaxBackoff: retry.MaxBackoff,
	}
}

// Load builds the configuration from args (without the program name).
// When help is requested it is written to out and ErrHelp is returned.
func Load(args []string, out io.Writer) (*Config, error) {
	// First pass only locates the config file.
	probe := Default()
	if err := parse(&probe, args, out); err != nil {
		return nil, err
	}

	cfg := Default()
	if probe.ConfigFile != "" {
		if err := cfg.loadFile(probe.ConfigFile); err != nil {
			return nil, err
		}
	}

	// Flags and environment override the file.
	if err := parse(&cfg, args, out); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// parse applies flags and environment on top of dest. go-arg turns every
// non-zero field into a default and rejects defaults for slice fields, so
// slices are held back and restored when nothing overrode them.
func parse(dest *Config, args []string, out io.Writer) error {
	origins := dest.CORSOrigins
	dest.CORSOrigins = nil

	parser, err := arg.NewParser(arg.Config{Program: "pncp-proxy"}, dest)
	if err != nil {
		return fmt.Errorf("build argument parser: %w", err)
	}

	if err := parser.Parse(args); err != nil {
		if errors.Is(err, arg.ErrHelp) {
			parser.WriteHelp(out)
			return ErrHelp
		}
		return fmt.Errorf("parse arguments: %w", err)
	}

	if len(dest.CORSOrigins) == 0 {
		dest.CORSOrigins = origins
	}

	return nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	return nil
}

// Validate checks every field constraint.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.LogLevel)
	cfg.Pretty = c.LogPretty
	return cfg
}

// Client returns the upstream client settings.
func (c *Config) Client() client.Config {
	cfg := client.DefaultConfig(c.UserAgent)
	cfg.MaxBodyBytes = c.MaxBodyBytes
	return cfg
}

// Proxy returns the orchestration settings.
func (c *Config) Proxy() proxy.Config {
	return proxy.Config{
		Timeouts: map[translate.RouteKind]time.Duration{
			translate.RouteGeneric:      c.TimeoutGeneric,
			translate.RouteContratacoes: c.TimeoutContratacoes,
			translate.RouteVeiculos:     c.TimeoutVeiculos,
			translate.RouteDocumentos:   c.TimeoutDocumentos,
		},
		Retry: proxy.RetryConfig{
			MaxAttempts:       c.RetryAttempts,
			InitialBackoff:    c.RetryBackoff,
			MaxBackoff:        c.RetryMaxBackoff,
			BackoffMultiplier: 2.0,
		},
	}
}
