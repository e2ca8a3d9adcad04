package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/factllm/internal/application/batch"
	"github.com/aescanero/factllm/internal/application/runs"
	"github.com/aescanero/factllm/internal/application/workers"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server represents the HTTP API server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	manager   *runs.Manager
	driver    *batch.Driver
	validator *runs.Validator
	pool      *workers.Pool
	defaults  Defaults
	logger    *zap.Logger
}

// Defaults are applied to requests that leave the field empty. Seed is
// always applied, so zero is a valid configured seed.
type Defaults struct {
	SystemRole string
	Seed       int64
}

// Config holds HTTP server configuration
type Config struct {
	Port      int
	Manager   *runs.Manager
	Driver    *batch.Driver
	Validator *runs.Validator
	// Pool is optional; without it /health reports only the limiter
	Pool     *workers.Pool
	Defaults Defaults
	// Gatherer backs /metrics; nil means the default registry
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	// Seeds decode as json.Number so integral values pass seed validation.
	binding.EnableDecoderUseNumber = true

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(cfg.Logger))

	validator := cfg.Validator
	if validator == nil {
		validator = runs.NewValidator(runs.DefaultMaxPrompts)
	}

	s := &Server{
		router:    router,
		manager:   cfg.Manager,
		driver:    cfg.Driver,
		validator: validator,
		pool:      cfg.Pool,
		defaults:  cfg.Defaults,
		logger:    cfg.Logger,
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.setupRoutes(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(metrics http.Handler) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(metrics))

	// API v1
	v1 := s.router.Group("/api/v1")
	{
		// Synchronous batch
		v1.POST("/completions", s.handleCompletions)

		// Run endpoints
		v1.POST("/runs", s.handleSubmitRun)
		v1.GET("/runs", s.handleListRuns)
		v1.GET("/runs/:id", s.handleGetRun)
		v1.POST("/runs/:id/cancel", s.handleCancelRun)
	}
}

// SetupWebSocket adds the run event stream to the server
func (s *Server) SetupWebSocket(handler interface {
	HandleRunStream(*gin.Context)
}) {
	s.router.GET("/api/v1/runs/:id/ws", handler.HandleRunStream)
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}
