// Package server exposes the proxy over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pncp-proxy/pkg/metrics"
	"github.com/Sternrassler/pncp-proxy/pkg/proxy"
	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

// Route paths.
const (
	PathHealth       = "/health"
	PathMetrics      = "/metrics"
	PathContratacoes = "/api/contratacoes"
	PathVeiculos     = "/api/veiculos"
	PathDocumentos   = "/api/documentos/{id}"
)

// Handler processes one proxied request. *proxy.Proxy implements it.
type Handler interface {
	Handle(ctx context.Context, req translate.Request) proxy.Response
}

// Config holds server settings.
type Config struct {
	// Mount is the passthrough prefix, e.g. /api/pncp.
	Mount string

	// Version is reported by the health endpoint.
	Version string

	// CORSOrigins lists allowed origins; "*" allows any.
	CORSOrigins []string
}

// Server routes HTTP requests to the proxy pipeline.
type Server struct {
	proxy  Handler
	config Config
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a server.
func New(p Handler, cfg Config, logger zerolog.Logger) *Server {
	if cfg.Mount == "" {
		cfg.Mount = translate.DefaultMount
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	return &Server{
		proxy:  p,
		config: cfg,
		now:    time.Now,
		logger: logger,
	}
}

// Router builds the routing table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter().UseEncodedPath()
	r.NotFoundHandler = http.HandlerFunc(s.notFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.methodNotAllowed)

	r.HandleFunc(PathHealth, s.health).Methods(http.MethodGet)
	r.Handle(PathMetrics, metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc(PathContratacoes, s.route(translate.RouteContratacoes)).Methods(http.MethodGet)
	r.HandleFunc(PathVeiculos, s.route(translate.RouteVeiculos)).Methods(http.MethodGet)
	r.HandleFunc(PathDocumentos, s.route(translate.RouteDocumentos)).Methods(http.MethodGet)

	r.Handle(s.config.Mount, s.route(translate.RouteGeneric)).Methods(http.MethodGet)
	r.PathPrefix(s.config.Mount + "/").Handler(s.route(translate.RouteGeneric)).Methods(http.MethodGet)

	return r
}

// Handler returns the router wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins(s.config.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", RequestIDHeader}),
		handlers.ExposedHeaders([]string{CacheHeader, RequestIDHeader}),
	)

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{s.logger}),
		handlers.PrintRecoveryStack(true),
	)

	return requestID(s.accessLog(cors(recovery(s.Router()))))
}
