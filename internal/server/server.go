// Package server exposes the read-only HTTP and WebSocket API.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/supafund/supafund-engine/internal/server/handler"
	"github.com/supafund/supafund-engine/internal/server/middleware"
	"github.com/supafund/supafund-engine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Portfolio *handler.PortfolioHandler
	Rewards   *handler.RewardsHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and middleware. wsHub may be nil when the
// WebSocket bridge is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/portfolio", handlers.Portfolio.GetView)
	mux.HandleFunc("GET /api/portfolio/metrics", handlers.Portfolio.GetMetrics)
	mux.HandleFunc("GET /api/portfolio/positions", handlers.Portfolio.GetPositions)
	mux.HandleFunc("GET /api/portfolio/activity", handlers.Portfolio.GetActivity)
	mux.HandleFunc("GET /api/portfolio/history", handlers.Portfolio.GetHistory)
	mux.HandleFunc("GET /api/opportunities", handlers.Portfolio.GetOpportunities)

	mux.HandleFunc("GET /api/rewards/streak", handlers.Rewards.GetStreak)
	mux.HandleFunc("GET /api/rewards/checkpoints", handlers.Rewards.GetCheckpoints)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// Start blocks serving requests until the server errors or shuts down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
