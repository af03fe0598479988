package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/selivandex/market-pulse/internal/health"
	"github.com/selivandex/market-pulse/pkg/logger"
	"github.com/selivandex/market-pulse/pkg/metrics"
)

// Server is the HTTP query service
type Server struct {
	server   *http.Server
	strategy Strategy
	health   *health.Checker
}

// NewServer creates new API server on port using strategy
func NewServer(port string, strategy Strategy, checker *health.Checker) *Server {
	s := &Server{
		strategy: strategy,
		health:   checker,
	}

	s.server = &http.Server{
		Addr:         ":" + port,
		Handler:      s.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// Routes builds the router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(accessLog)

	r.Get("/", s.handleIndex)
	r.Get("/api/posts", s.handlePosts)
	r.Get("/api/posts/{id}/comments", s.handleComments)
	r.Get("/api/stocks", s.handleStocks)

	r.Get("/health", s.health.HandleHealth)
	r.Get("/ready", s.health.HandleReadiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// Start starts the server and blocks until it is stopped
func (s *Server) Start() error {
	logger.Info("api server starting",
		zap.String("addr", s.server.Addr),
		zap.String("mode", s.strategy.Mode()),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	logger.Info("stopping api server...")
	return s.server.Shutdown(ctx)
}

// accessLog logs and records metrics for every request
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		duration := time.Since(start)
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		metrics.RecordHTTPRequest(route, status, duration)
		logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
