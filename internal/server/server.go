// Package server exposes the assistant pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/scholar/internal/assistant"
	"github.com/haasonsaas/scholar/internal/auth"
	"github.com/haasonsaas/scholar/internal/intent"
	"github.com/haasonsaas/scholar/internal/ledger"
	"github.com/haasonsaas/scholar/internal/models"
	"github.com/haasonsaas/scholar/internal/observability"
	"github.com/haasonsaas/scholar/internal/persona"
	"github.com/haasonsaas/scholar/internal/providers"
	"github.com/haasonsaas/scholar/internal/ratelimit"
)

// Asker is the pipeline the server fronts.
type Asker interface {
	Ask(ctx context.Context, q assistant.Query, prefs models.UserPreferences, creds providers.Credentials) (*assistant.Answer, error)
	Classify(ctx context.Context, text string) (intent.Result, *persona.Profile)
}

// Settings supplies the current default preferences and credentials. It is
// read on every request so a reloaded config takes effect without restart.
type Settings interface {
	Preferences() models.UserPreferences
	Credentials() providers.Credentials
}

// StaticSettings is a fixed Settings.
type StaticSettings struct {
	Prefs models.UserPreferences
	Creds providers.Credentials
}

func (s StaticSettings) Preferences() models.UserPreferences { return s.Prefs }
func (s StaticSettings) Credentials() providers.Credentials  { return s.Creds }

// Config configures the HTTP server.
type Config struct {
	Address           string
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	ShutdownTimeout   time.Duration

	Assistant Asker
	Registry  *models.Registry
	Resolver  *models.Resolver
	Settings  Settings

	// Ledger is optional; /v1/outcomes returns 404 without it.
	Ledger ledger.Store

	// Auth is optional; nil disables authentication.
	Auth *auth.Service

	// RateLimiter bounds /v1/ask per caller. Nil disables limiting.
	RateLimiter *ratelimit.Limiter

	Logger   *slog.Logger
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
	Gatherer prometheus.Gatherer
}

// Server is the HTTP front end.
type Server struct {
	config  Config
	logger  *slog.Logger
	handler http.Handler
}

// New validates cfg and builds the route table.
func New(cfg Config) (*Server, error) {
	if cfg.Assistant == nil {
		return nil, errors.New("server: assistant is required")
	}
	if cfg.Registry == nil || cfg.Resolver == nil {
		return nil, errors.New("server: registry and resolver are required")
	}
	if cfg.Settings == nil {
		cfg.Settings = StaticSettings{Creds: providers.NoCredentials}
	}
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{config: cfg, logger: cfg.Logger.With("component", "server")}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/ask", s.handleAsk)
	mux.HandleFunc("POST /v1/classify", s.handleClassify)
	mux.HandleFunc("GET /v1/candidates", s.handleCandidates)
	mux.HandleFunc("GET /v1/models", s.handleModels)
	mux.HandleFunc("GET /v1/outcomes", s.handleOutcomes)

	var h http.Handler = mux
	h = auth.Middleware(s.config.Auth, s.logger, "/healthz", "/metrics")(h)
	h = s.instrument(h)
	return h
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.ReadHeaderTimeout,
		WriteTimeout:      s.config.WriteTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting http server", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("http server shutdown error", "error", err)
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}
