// Package api exposes the scoring engine and backtest runner over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/stockfunk/internal/backtest"
	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/regime"
	"github.com/ajitpratap0/stockfunk/internal/scoring"
)

// Server is the REST API server.
type Server struct {
	router  *gin.Engine
	scorer  *scoring.Scorer
	regimes *regime.Service
	jobs    *backtest.Manager
	cfg     config.APIConfig
	server  *http.Server
}

// NewServer wires the router, middleware and routes.
func NewServer(cfg config.APIConfig, scorer *scoring.Scorer, regimes *regime.Service, jobs *backtest.Manager) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(RateLimitMiddleware(cfg.RatePerSecond, cfg.RateBurst))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	s := &Server{
		router:  router,
		scorer:  scorer,
		regimes: regimes,
		jobs:    jobs,
		cfg:     cfg,
	}
	s.setupRoutes()
	return s
}

// corsConfig builds the CORS policy. A wildcard origin disables
// credentialed requests, per the fetch spec.
func corsConfig(origins []string) cors.Config {
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if allowAll {
		cc.AllowAllOrigins = true
		cc.AllowCredentials = false
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cc
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Str("addr", s.cfg.Addr()).Msg("Starting API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	log.Info().Msg("Stopping API server")
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}
	return nil
}

// setupRoutes registers every endpoint.
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/metrics", MetricsHandler())

	s.router.POST("/analyze", s.handleAnalyze)
	s.router.GET("/analyze/:symbol", s.handleAnalyzeSymbol)
	s.router.POST("/analyze/batch", s.handleAnalyzeBatch)
	s.router.GET("/market/regime", s.handleRegime)

	v1 := s.router.Group("/api/v1")
	{
		backtests := v1.Group("/backtests")
		{
			backtests.POST("", s.handleCreateBacktest)
			backtests.GET("", s.handleListBacktests)
			backtests.GET("/:id", s.handleGetBacktest)
			backtests.DELETE("/:id", s.handleDeleteBacktest)
			backtests.GET("/:id/ws", s.handleBacktestProgress)
		}
	}
}
