// Package proxy composes translation, caching, upstream fetching and
// transformation into one request pipeline.
//
// Every call to Handle ends in exactly one Response. The cache is written
// only after the upstream fetch and the transform have both succeeded.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pncp-proxy/pkg/cache"
	"github.com/Sternrassler/pncp-proxy/pkg/client"
	"github.com/Sternrassler/pncp-proxy/pkg/transform"
	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

// Prometheus metrics for proxied requests.
var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pncp_proxy_requests_total",
		Help: "Total proxied requests by route, HTTP status and cache outcome",
	}, []string{"route", "status", "cache"})

	proxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pncp_proxy_request_duration_seconds",
		Help:    "Proxied request duration in seconds by route",
		Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 15, 30},
	}, []string{"route"})

	proxyItemsReturned = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pncp_proxy_items",
		Help:    "Number of items in freshly transformed payloads by route",
		Buckets: []float64{0, 1, 5, 10, 50, 100, 500},
	}, []string{"route"})
)

// StatusClientClosedRequest is reported when the caller left before the
// response was ready. Nothing is written for it.
const StatusClientClosedRequest = 499

// Fetcher performs a single upstream GET. *client.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, timeout time.Duration) client.Result
}

// Config holds orchestration settings.
type Config struct {
	// Timeouts bounds each upstream attempt per route. Missing routes use
	// client.DefaultTimeout.
	Timeouts map[translate.RouteKind]time.Duration

	// Retry bounds repeated attempts on timeouts and transport errors.
	Retry RetryConfig
}

// DefaultTimeouts returns the per-route upstream timeouts.
func DefaultTimeouts() map[translate.RouteKind]time.Duration {
	return map[translate.RouteKind]time.Duration{
		translate.RouteGeneric:      30 * time.Second,
		translate.RouteContratacoes: 15 * time.Second,
		translate.RouteVeiculos:     15 * time.Second,
		translate.RouteDocumentos:   30 * time.Second,
	}
}

// DefaultConfig returns the default orchestration settings.
func DefaultConfig() Config {
	return Config{
		Timeouts: DefaultTimeouts(),
		Retry:    DefaultRetryConfig(),
	}
}

// Response is the outcome of one proxied request.
type Response struct {
	// Status is the HTTP status to send.
	Status int

	Envelope Envelope

	// Cache is empty when the cache was not consulted.
	Cache cache.Outcome
}

// Proxy is the request pipeline.
type Proxy struct {
	translator *translate.Translator
	store      *cache.Store
	upstream   Fetcher
	config     Config
	now        func() time.Time
	logger     zerolog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithClock sets the time source for envelope timestamps (for testing).
func WithClock(now func() time.Time) Option {
	return func(p *Proxy) {
		p.now = now
	}
}

// WithLogger sets the proxy logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// New creates a proxy. The store is shared by every request handled.
func New(translator *translate.Translator, store *cache.Store, upstream Fetcher, cfg Config, opts ...Option) (*Proxy, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if upstream == nil {
		return nil, fmt.Errorf("upstream fetcher is required")
	}

	if cfg.Timeouts == nil {
		cfg.Timeouts = DefaultTimeouts()
	}

	p := &Proxy{
		translator: translator,
		store:      store,
		upstream:   upstream,
		config:     cfg,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Handle runs req through the pipeline.
//
// ctx is the caller's context. If it ends before the payload is ready the
// caller gets StatusClientClosedRequest, while a fetch shared with other
// callers still runs to completion and is cached.
func (p *Proxy) Handle(ctx context.Context, req translate.Request) Response {
	startTime := p.now()
	route := req.Route
	if route == "" {
		route = translate.RouteGeneric
	}

	resp := p.handle(ctx, route, req)

	proxyRequestsTotal.WithLabelValues(string(route), strconv.Itoa(resp.Status), string(resp.Cache)).Inc()
	proxyRequestDuration.WithLabelValues(string(route)).Observe(p.now().Sub(startTime).Seconds())

	return resp
}

func (p *Proxy) handle(ctx context.Context, route translate.RouteKind, req translate.Request) Response {
	target, err := p.translator.Translate(req)
	if err != nil {
		p.logger.Debug().Err(err).Str("route", string(route)).Msg("Rejected invalid request")
		return Response{
			Status:   http.StatusBadRequest,
			Envelope: NewFailure(err.Error(), NewMetadata(p.now(), p.translator.Host())),
		}
	}

	key := target.CacheKey()
	payload, outcome, err := p.store.Fetch(ctx, key, p.producer(target))
	meta := NewMetadata(p.now(), target.Host)

	if err != nil {
		resp := p.failure(ctx, err, meta)
		resp.Cache = outcome
		return resp
	}

	p.logger.Debug().
		Str("route", string(route)).
		Str("key", key.String()).
		Str("cache", string(outcome)).
		Msg("Request served")

	return Response{
		Status:   http.StatusOK,
		Envelope: NewSuccess(payload, meta),
		Cache:    outcome,
	}
}

// producer fetches and transforms target. It is run at most once per key
// among concurrent misses, on a context the caller cannot cancel.
func (p *Proxy) producer(target translate.Target) cache.Producer {
	return func(ctx context.Context) (json.RawMessage, error) {
		timeout := p.timeout(target.Route)

		result, attempts, err := retryWithBackoff(ctx, p.config.Retry, p.logger, func(ctx context.Context) client.Result {
			return p.upstream.Fetch(ctx, target.URL, timeout)
		})
		if err != nil {
			p.logger.Warn().
				Str("url", target.URL).
				Str("result", string(result.Kind)).
				Int("attempts", attempts).
				Err(err).
				Msg("Upstream fetch failed")
			return nil, err
		}

		route := transform.Route{Kind: target.Route}
		if target.Route == translate.RouteDocumentos {
			route.ProcurementID = target.ProcurementID
			route.DocumentsURL = p.translator.DocumentsURL(target.ProcurementID)
		}

		out, err := transform.Transform(result.Body, route)
		if err != nil {
			return nil, &client.UpstreamFailure{
				Result: client.TransportError(client.ReasonMalformedBody),
				Err:    fmt.Errorf("%w: %w", client.ErrMalformedBody, err),
			}
		}

		proxyItemsReturned.WithLabelValues(string(target.Route)).Observe(float64(out.ItemCount))
		return out.Payload, nil
	}
}

func (p *Proxy) timeout(route translate.RouteKind) time.Duration {
	if d, ok := p.config.Timeouts[route]; ok && d > 0 {
		return d
	}
	return client.DefaultTimeout
}

// failure maps a pipeline error to a response.
func (p *Proxy) failure(ctx context.Context, err error, meta *Metadata) Response {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return Response{
			Status:   StatusClientClosedRequest,
			Envelope: NewFailure("request cancelled", meta),
		}
	}

	result, ok := client.AsResult(err)
	if !ok {
		p.logger.Error().Err(err).Msg("Unclassified proxy failure")
		return Response{
			Status:   http.StatusInternalServerError,
			Envelope: NewFailure(err.Error(), meta),
		}
	}

	return Response{
		Status:   StatusFor(result),
		Envelope: envelopeFor(result, err, meta),
	}
}

// StatusFor is the HTTP status reported for a failed upstream result.
// Upstream errors keep the upstream status; 200 is reserved for success.
func StatusFor(result client.Result) int {
	switch result.Kind {
	case client.KindSuccess:
		return http.StatusOK
	case client.KindUpstreamError:
		// Redirects and other non-error codes cannot be forwarded bodiless.
		if result.StatusCode >= 400 && result.StatusCode <= 599 {
			return result.StatusCode
		}
		return http.StatusBadGateway
	case client.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func envelopeFor(result client.Result, err error, meta *Metadata) Envelope {
	env := NewFailure(err.Error(), meta)
	if result.Kind == client.KindUpstreamError {
		env = env.WithUpstream(result.StatusCode, result.Body)
	}
	return env
}
