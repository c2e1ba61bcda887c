package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pncp-proxy/internal/config"
	"github.com/Sternrassler/pncp-proxy/internal/server"
	"github.com/Sternrassler/pncp-proxy/pkg/cache"
	"github.com/Sternrassler/pncp-proxy/pkg/client"
	"github.com/Sternrassler/pncp-proxy/pkg/logging"
	"github.com/Sternrassler/pncp-proxy/pkg/proxy"
	"github.com/Sternrassler/pncp-proxy/pkg/translate"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "pncp-proxy: %v\n", err)
		os.Exit(1)
	}
}

// run loads the configuration and serves until ctx is cancelled.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	cfg, err := config.Load(args, stdout)
	if errors.Is(err, config.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging())
	logger := logging.NewLogger(logging.ComponentServer)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Listen, err)
	}

	return a.serve(ctx, ln, cfg.ShutdownTimeout, logger)
}

type app struct {
	handler http.Handler
	store   *cache.Store
	janitor *cron.Cron
}

// newApp wires the translator, cache, upstream client and proxy behind the
// HTTP handler.
func newApp(cfg *config.Config) (*app, error) {
	translator, err := translate.New(cfg.BaseURL, cfg.DocumentsBaseURL, translate.DefaultMount)
	if err != nil {
		return nil, fmt.Errorf("create translator: %w", err)
	}

	store, err := cache.NewStore(cfg.CacheTTL,
		cache.WithMaxEntries(cfg.CacheMaxEntries),
		cache.WithLogger(logging.NewLogger(logging.ComponentCache)),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}

	upstream, err := client.New(cfg.Client())
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	p, err := proxy.New(translator, store, upstream, cfg.Proxy(),
		proxy.WithLogger(logging.NewLogger(logging.ComponentProxy)),
	)
	if err != nil {
		return nil, fmt.Errorf("create proxy: %w", err)
	}

	var janitor *cron.Cron
	if cfg.JanitorSchedule != "" {
		janitor, err = cache.StartJanitor(store, cfg.JanitorSchedule, logging.NewLogger(logging.ComponentJanitor))
		if err != nil {
			return nil, err
		}
	}

	srv := server.New(p, server.Config{
		Mount:       translator.Mount(),
		Version:     version,
		CORSOrigins: cfg.CORSOrigins,
	}, logging.NewLogger(logging.ComponentServer))

	return &app{
		handler: srv.Handler(),
		store:   store,
		janitor: janitor,
	}, nil
}

// serve blocks until ctx is done, then drains in-flight requests for at
// most grace.
func (a *app) serve(ctx context.Context, ln net.Listener, grace time.Duration, logger zerolog.Logger) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", ln.Addr().String()).
			Str("version", version).
			Msg("Starting PNCP proxy")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Dur("grace", grace).Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info().Msg("Server stopped")
	return nil
}

func (a *app) close() {
	if a.janitor != nil {
		<-a.janitor.Stop().Done()
	}
}
