package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	apisetup "message-bridge/internal/api"
	"message-bridge/internal/bootstrap"
	"message-bridge/internal/config"
	"message-bridge/internal/observability"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const defaultShutdownTimeout = 5 * time.Second

// Server encapsulates the HTTP server and the consumer task
type Server struct {
	httpServer     *http.Server
	router         *gin.Engine
	deps           *bootstrap.Dependencies
	config         *config.Config
	logger         *observability.Logger
	cancelConsumer context.CancelFunc
	consumerDone   chan struct{}

	shutdownTimeout time.Duration
}

// New creates a new Server instance
func New(cfg *config.Config, deps *bootstrap.Dependencies, logger *observability.Logger) *Server {
	return &Server{
		config:          cfg,
		deps:            deps,
		logger:          logger,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// Setup configures the HTTP router with middleware and routes
func (s *Server) Setup() {
	if s.config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", observability.RequestIDHeader}
	corsConfig.AllowOrigins = s.config.Server.CORSAllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}

	s.router.Use(cors.New(corsConfig))
	s.router.Use(observability.Middleware(s.logger))

	rootRouter := s.router.Group("/")
	api := apisetup.New(rootRouter, s.deps.MessageHandler, s.deps.MetricsHandler())
	api.RegisterRoutes()
}

// Router returns the configured gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the consumer task and begins listening for HTTP requests. The consumer must
// already be subscribed.
func (s *Server) Start(ctx context.Context) error {
	consumerCtx, cancel := context.WithCancel(ctx)
	s.cancelConsumer = cancel
	s.consumerDone = make(chan struct{})

	go func() {
		defer close(s.consumerDone)
		if err := s.deps.Consumer.Start(consumerCtx); err != nil {
			s.logger.Error(ctx, "message consumer stopped with error", err)
		}
	}()

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run the server in a goroutine so that it doesn't block
	go func() {
		s.logger.Info(ctx, fmt.Sprintf("Server starting on port %d", s.config.Server.Port))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error(ctx, "server failed to start", err)
			os.Exit(1)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received, then gracefully shuts down
func (s *Server) WaitForShutdown(ctx context.Context) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case <-ctx.Done():
	}
	s.logger.Info(ctx, "Shutting down server...")

	return s.Shutdown(ctx)
}

// Shutdown stops accepting requests, lets the record in flight finish and releases
// the broker and database handles.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
	}

	consumerStopped := true
	if s.cancelConsumer != nil {
		s.cancelConsumer()
		select {
		case <-s.consumerDone:
		case <-shutdownCtx.Done():
			consumerStopped = false
			errs = append(errs, fmt.Errorf("consumer did not stop within %s", s.shutdownTimeout))
		}
	}

	if consumerStopped {
		s.deps.Cleanup(shutdownCtx)
	} else {
		s.deps.CleanupWithoutConsumer(shutdownCtx)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info(ctx, "Server exited gracefully")
	return nil
}
