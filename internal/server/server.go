// Package server assembles the HTTP + WebSocket API for the trade desk.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openfloor/tradedesk/internal/domain"
	"github.com/openfloor/tradedesk/internal/server/handler"
	"github.com/openfloor/tradedesk/internal/server/middleware"
	"github.com/openfloor/tradedesk/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	JWTSecret   string // if empty, authentication is disabled (dev only)

	RateLimit       int           // requests per window per client; 0 disables
	RateLimitWindow time.Duration // window for RateLimit
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Positions *handler.PositionHandler
	Exits     *handler.ExitHandler
	Archive   *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the trade desk.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, rate limiting, logging, auth) and attaches
// the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Position lifecycle.
	mux.HandleFunc("POST /api/positions", handlers.Positions.Create)
	mux.HandleFunc("GET /api/positions", handlers.Positions.List)
	mux.HandleFunc("GET /api/positions/close-requests", handlers.Positions.ListCloseRequests)
	mux.HandleFunc("GET /api/positions/closed", handlers.Positions.ListClosed)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.Get)
	mux.HandleFunc("PUT /api/positions/{id}/fills", handlers.Positions.RecordFill)
	mux.HandleFunc("POST /api/positions/{id}/entries", handlers.Positions.AppendEntries)
	mux.HandleFunc("POST /api/positions/{id}/status", handlers.Positions.UpdateStatus)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Positions.RequestClose)
	mux.HandleFunc("POST /api/positions/{id}/accept-close", handlers.Positions.AcceptClose)

	// Exit sub-ledger.
	mux.HandleFunc("POST /api/positions/{id}/exits", handlers.Exits.Create)
	mux.HandleFunc("GET /api/positions/{id}/exits", handlers.Exits.ListByPosition)
	mux.HandleFunc("PUT /api/exits/{id}", handlers.Exits.Update)
	mux.HandleFunc("GET /api/openbook", handlers.Exits.OpenBook)

	// Archive export.
	mux.HandleFunc("POST /api/archive/export", handlers.Archive.Export)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.JWTSecret)(h)
	h = middleware.Logging(logger)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
