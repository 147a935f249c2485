// Package server runs the local session proxy: a small HTTP service that
// exposes the session state and relays API calls through the gateway, so
// tools without their own token handling can reach the practice platform.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/practicedesk/internal/auth"
	"github.com/felixgeelhaar/practicedesk/internal/health"
	"github.com/felixgeelhaar/practicedesk/internal/log"
	"github.com/felixgeelhaar/practicedesk/internal/metrics"
	"github.com/felixgeelhaar/practicedesk/internal/platform"
)

// Config holds server configuration.
type Config struct {
	// Address is the listen address (e.g., "127.0.0.1:8787")
	Address string

	// ShutdownTimeout bounds connection draining. Defaults to 15 seconds.
	ShutdownTimeout time.Duration

	// ReadTimeout defaults to 10 seconds.
	ReadTimeout time.Duration

	// WriteTimeout defaults to 60 seconds, long enough for a refresh and retry.
	WriteTimeout time.Duration

	// IdleTimeout defaults to 60 seconds.
	IdleTimeout time.Duration
}

// Deps are the components the proxy serves.
type Deps struct {
	Controller *auth.Controller
	Client     *platform.Client
	Health     *health.Manager
	Gatherer   prometheus.Gatherer
	Metrics    *metrics.Metrics
	Logger     *log.Logger
}

// Server is the local session proxy.
type Server struct {
	httpServer      *http.Server
	deps            Deps
	logger          *log.Logger
	shutdownTimeout time.Duration
}

// New creates the proxy.
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 15 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = log.DefaultLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Discard()
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}

	s := &Server{
		deps:            deps,
		logger:          deps.Logger.Named("proxy"),
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.Handler(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler returns the proxy's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(s.accessLog)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/health/live", s.handleLiveness)
	r.Get("/health/ready", s.handleReadiness)
	r.Handle("/metrics", metrics.HandlerFor(s.deps.Gatherer))

	r.Route("/session", func(r chi.Router) {
		r.Get("/", s.handleSession)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/profile", s.handleProfile)
	})

	r.Handle("/api/*", http.HandlerFunc(s.handleForward))

	return otelhttp.NewHandler(r, "practicedesk-proxy")
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("session proxy listening", "address", l.Addr().String())
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains connections, waiting at most the configured timeout.
// Readiness fails from the moment it is called.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.deps.Health != nil {
		s.deps.Health.MarkShutdown()
	}
	s.httpServer.SetKeepAlivesEnabled(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Run listens on the configured address and shuts down when ctx ends.
func (s *Server) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Serve(l)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down session proxy")
		return s.Shutdown(context.WithoutCancel(ctx))
	})
	return g.Wait()
}
