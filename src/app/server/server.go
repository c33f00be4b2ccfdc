// Package server provides HTTP server initialization and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"productservice/src/app/http/handler"
	"productservice/src/app/middleware"
	"productservice/src/core/ports"
	"productservice/src/core/usecase"
	"productservice/src/infra/config"
)

// Deps are the collaborators the HTTP layer is built from.
type Deps struct {
	Products ports.ProductRepository
	Database handler.DatabaseChecker
	// Dependencies are reported by /health/detailed.
	Dependencies []ports.Dependency
	// Metrics is optional; when nil no /metrics route is mounted.
	Metrics MetricsExporter
}

// MetricsExporter serves the Prometheus registry and records requests.
type MetricsExporter interface {
	middleware.RequestRecorder
	Handler() http.Handler
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg    *config.Config
	log    *slog.Logger
	router *gin.Engine
	http   *http.Server

	metrics MetricsExporter

	healthHandler  *handler.HealthHandler
	productHandler *handler.ProductHandler
}

// New creates a new Server with all dependencies wired up.
func New(cfg *config.Config, log *slog.Logger, deps Deps) *Server {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	handler.UseJSONFieldNames()

	router := gin.New()

	healthService := usecase.NewHealthService(log, deps.Dependencies...)
	productService := usecase.NewProductService(deps.Products, log)

	s := &Server{
		cfg:            cfg,
		log:            log,
		router:         router,
		metrics:        deps.Metrics,
		healthHandler:  handler.NewHealthHandler(healthService, deps.Database, cfg.Server.ServiceName, cfg.Server.Port),
		productHandler: handler.NewProductHandler(productService),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	// Recovery first so that it catches panics from everything below.
	s.router.Use(middleware.Recovery(s.log))
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.CORS())
	if s.metrics != nil {
		s.router.Use(middleware.Metrics(s.metrics))
	}
	s.router.Use(middleware.UserInfo())
	s.router.Use(middleware.Logging(s.log))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler.Health)
	s.router.GET("/health/detailed", s.healthHandler.DetailedHealth)
	s.router.GET("/health/db", s.healthHandler.Database)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}

	products := s.router.Group("/api/products")
	{
		products.GET("", s.productHandler.List)
		products.GET("/low-stock", s.productHandler.LowStock)
		products.GET("/category/:category", s.productHandler.ByCategory)
		products.GET("/:id", s.productHandler.Get)
		products.POST("", s.productHandler.Create)
		products.PUT("/:id", s.productHandler.Update)
		products.DELETE("/:id", s.productHandler.Delete)
	}

	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":       "NOT_FOUND",
				"message":    "The requested resource was not found",
				"request_id": middleware.GetRequestID(c),
			},
		})
	})
}

// setupHTTPServer configures the underlying HTTP server.
func (s *Server) setupHTTPServer() {
	s.http = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}

// Run serves until ctx is canceled, then shuts down gracefully. It returns
// early with the listener error if the server cannot start.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "addr", s.cfg.Server.Addr())
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.log.Info("shutting down server", "timeout", s.cfg.Server.ShutdownTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info("server stopped gracefully")
	return nil
}

// Router returns the Gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// WaitForReady waits until the server is ready to accept connections.
// Useful for integration tests.
func (s *Server) WaitForReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", s.cfg.Server.Addr()))
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("server not ready after %v", timeout)
}
