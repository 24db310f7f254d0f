// Package http serves the stream resolution API together with health,
// readiness and metrics endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"musicstreamer/internal/core"
	"musicstreamer/pkg/stream"
)

// StreamService is the resolution API the routes depend on.
type StreamService interface {
	ResolveStream(ctx context.Context, trackID, region string) (*stream.StreamResult, error)
	Providers() []string
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

// Info describes the running service on the info routes.
type Info struct {
	ServiceName string
	Version     string
}

func NewServer(config *core.ServerConfig, info Info, service StreamService, metrics *Metrics, logger *zap.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	router := setupRoutes(info, service, metrics, logger)

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, router),
		metrics: metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func setupRoutes(info Info, service StreamService, metrics *Metrics, logger *zap.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestIDMiddleware, loggingMiddleware(logger, metrics))

	router.HandleFunc("/stream/{id}", streamHandler(service, logger)).Methods(http.MethodGet).Name("stream")
	router.HandleFunc("/info", infoHandler(info, service)).Methods(http.MethodGet).Name("info")
	router.HandleFunc("/", infoHandler(info, service)).Methods(http.MethodGet).Name("root")
	router.HandleFunc("/healthz", healthHandler(info)).Methods(http.MethodGet).Name("healthz")
	router.HandleFunc("/readyz", readyHandler(info, service)).Methods(http.MethodGet).Name("readyz")
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet).Name("metrics")

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return router
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
