package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hakanai/hakanai/internal/auth"
	"github.com/hakanai/hakanai/internal/geoip"
	"github.com/hakanai/hakanai/internal/kv"
	"github.com/hakanai/hakanai/internal/logging"
	"github.com/hakanai/hakanai/internal/metrics"
	"github.com/hakanai/hakanai/internal/ratelimit"
	"github.com/hakanai/hakanai/internal/secret"
)

// Server is the Hakanai HTTP API server.
type Server struct {
	cfg     *Config
	log     *logging.Logger
	metrics *metrics.Metrics

	store     kv.Store
	geoDB     *geoip.DB
	engine    *secret.Engine
	tokens    *auth.Store
	admission auth.Admission

	rateLimiter *ratelimit.Limiter
	middleware  *middleware

	httpServer    *http.Server
	metricsServer *http.Server

	mu      sync.RWMutex
	started bool
}

// New wires every component named in the config into a Server ready to
// Start. The caller owns closing the returned Server's KV connection
// via Shutdown.
func New(cfg *Config, log *logging.Logger, m *metrics.Metrics) (*Server, error) {
	store, err := kv.NewRedisStore(cfg.Secret.KVURL)
	if err != nil {
		return nil, fmt.Errorf("connect kv store: %w", err)
	}

	geoDB, err := geoip.Open(cfg.Restrict.GeoIPDBPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}

	chain := secret.NewChain(cfg.Restrict.EnableCountryRestrictions, cfg.Restrict.EnableASNRestrictions, geoDB)
	engine := secret.New(store, chain, log, m)
	tokens := auth.New(store)
	admission := auth.Admission{AnonymousSizeLimit: cfg.Secret.AnonymousSizeLimit}

	rl := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		CleanupInterval:   cfg.RateLimit.CleanupInterval,
		BanDuration:       cfg.RateLimit.BanDuration,
		MaxViolations:     cfg.RateLimit.MaxViolations,
	})

	s := &Server{
		cfg:         cfg,
		log:         log.WithComponent("server"),
		metrics:     m,
		store:       store,
		geoDB:       geoDB,
		engine:      engine,
		tokens:      tokens,
		admission:   admission,
		rateLimiter: rl,
	}
	s.middleware = newMiddleware(cfg, log, m, rl)

	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/secret", s.handleCreateSecret)
		r.Get("/secret/{id}", s.handleRetrieveSecret)
		r.Post("/tokens", s.handleCreateToken)
		r.Delete("/tokens/{hash}", s.handleRevokeToken)
	})

	r.Get("/config.json", s.handleConfig)
	r.Get("/s/{id}", s.handleSecretPage)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	return s.middleware.chain(r)
}

// Start begins serving on cfg.Server.ListenAddr. Blocks until the
// server stops (Shutdown or a listener error).
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Addr:           s.cfg.Server.ListenAddr,
		Handler:        s.routes(),
		ReadTimeout:    s.cfg.Server.ReadTimeout,
		WriteTimeout:   s.cfg.Server.WriteTimeout,
		IdleTimeout:    s.cfg.Server.IdleTimeout,
		MaxHeaderBytes: s.cfg.Server.MaxHeaderBytes,
	}

	if s.cfg.Metrics.Enabled {
		go s.startMetricsServer()
	}

	s.log.Info().Str("addr", s.cfg.Server.ListenAddr).Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

func (s *Server) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.Metrics.Path, s.metrics.Handler())

	addr := fmt.Sprintf(":%d", s.cfg.Metrics.Port)
	s.metricsServer = &http.Server{Addr: addr, Handler: mux}

	s.log.Info().Str("addr", addr).Msg("starting metrics server")
	if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msg("metrics server error")
	}
}

// RateLimitStats reports the current rate limiter population, broken
// down by admission kind. Exposed so the caller can log a periodic
// snapshot without reaching into the server's unexported fields.
func (s *Server) RateLimitStats() ratelimit.Stats {
	return s.rateLimiter.Stats()
}

// Shutdown gracefully stops the HTTP/metrics servers, the rate limiter
// cleanup goroutine, and closes the KV connection.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.rateLimiter.Stop()

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.log.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}

	if s.geoDB != nil {
		_ = s.geoDB.Close()
	}
	return s.store.Close()
}
