// Package client provides the PNCP upstream HTTP client: one bounded GET per
// call, classified into a Result.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pncp-proxy/pkg/logging"
)

// Prometheus metrics for upstream calls.
var (
	upstreamRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_upstream_requests_total",
		Help: "Total PNCP upstream requests by result kind",
	}, []string{"result"})

	upstreamStatusTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_upstream_responses_total",
		Help: "Total PNCP upstream responses by HTTP status code",
	}, []string{"status"})

	upstreamRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pncp_upstream_request_duration_seconds",
		Help:    "PNCP upstream request duration in seconds by result kind",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 15, 30},
	}, []string{"result"})
)

const (
	// DefaultTimeout bounds a call when the caller passes no timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes int64 = 32 << 20
)

// Client performs GET requests against the PNCP API.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// UserAgent identifies this proxy to PNCP (REQUIRED)
	UserAgent string

	// MaxBodyBytes caps response bodies; larger bodies are transport errors
	MaxBodyBytes int64

	// HTTPClient overrides the default HTTP client (optional)
	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent:    userAgent,
		MaxBodyBytes: DefaultMaxBodyBytes,
	}
}

// New creates a new upstream client.
func New(cfg Config) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		// No client-wide timeout: every call carries its own deadline.
		httpClient = &http.Client{}
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     logging.NewLogger(logging.ComponentClient),
	}, nil
}

// Fetch performs one GET against rawURL and classifies the outcome.
// The timeout applies to this call only (connect, headers and body).
// A timeout <= 0 uses DefaultTimeout.
func (c *Client) Fetch(ctx context.Context, rawURL string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	startTime := time.Now()
	result := c.fetch(ctx, rawURL, timeout)

	upstreamRequestsTotal.WithLabelValues(string(result.Kind)).Inc()
	upstreamRequestDuration.WithLabelValues(string(result.Kind)).Observe(time.Since(startTime).Seconds())
	if result.StatusCode > 0 {
		upstreamStatusTotal.WithLabelValues(strconv.Itoa(result.StatusCode)).Inc()
	}

	event := c.logger.Debug()
	if !result.OK() {
		event = c.logger.Warn()
	}
	event.
		Str("url", rawURL).
		Str("result", string(result.Kind)).
		Int("status_code", result.StatusCode).
		Str("reason", result.Reason).
		Dur("duration", time.Since(startTime)).
		Msg("PNCP request finished")

	return result
}

func (c *Client) fetch(ctx context.Context, rawURL string, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return TransportError(fmt.Sprintf("build request: %v", err))
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := readBody(resp.Body, c.config.MaxBodyBytes)
	if err != nil {
		return classifyError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return UpstreamError(resp.StatusCode, body)
	}

	if !sonic.Valid(body) {
		return TransportError(ReasonMalformedBody)
	}

	return Success(resp.StatusCode, body)
}

// classifyError maps a failed round trip or body read to a Result.
func classifyError(ctx context.Context, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Timeout()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Timeout()
	}

	if errors.Is(err, context.Canceled) {
		return TransportError("request cancelled")
	}

	if errors.Is(err, ErrBodyTooLarge) {
		return TransportError(err.Error())
	}

	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr):
		return TransportError(fmt.Sprintf("dns lookup failed: %s", dnsErr.Name))
	case errors.Is(err, syscall.ECONNREFUSED):
		return TransportError("connection refused")
	case errors.Is(err, syscall.ECONNRESET):
		return TransportError("connection reset")
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return TransportError("connection closed unexpectedly")
	default:
		return TransportError(err.Error())
	}
}

func readBody(body io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
	}
	return data, nil
}

