// Package api is the ingress surface: the typed rate endpoint plus health
// and metrics. The host runtime's message metadata (caller principal,
// attached cycles) arrives as request headers.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"xrate-oracle/internal/config"
	"xrate-oracle/internal/coordinator"
	"xrate-oracle/internal/host"
	"xrate-oracle/internal/rate"
)

// RateResolver resolves one exchange-rate request.
type RateResolver interface {
	GetExchangeRate(ctx context.Context, env host.Environment, req coordinator.Request) (rate.ExchangeRate, error)
}

// Server hosts the ingress endpoints.
type Server struct {
	resolver RateResolver
	logger   zerolog.Logger
	http     *http.Server
}

// NewServer assembles the HTTP server around the resolver.
func NewServer(cfg config.ServerConfig, resolver RateResolver, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		resolver: resolver,
		logger:   logger.With().Str("component", "api").Logger(),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.POST("/v1/rates", s.handleGetExchangeRate)
	router.GET("/healthz", s.handleHealth)
	if registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("ingress listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
