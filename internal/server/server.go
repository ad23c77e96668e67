// Package server assembles the HTTP and WebSocket API for the settlement
// engine.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/duelbet/settlement/internal/domain"
	"github.com/duelbet/settlement/internal/server/handler"
	"github.com/duelbet/settlement/internal/server/middleware"
	"github.com/duelbet/settlement/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Claim endpoints get their own per-IP rate limit; zero disables it.
	ClaimRateLimit  int
	ClaimRateWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health      *handler.HealthHandler
	Markets     *handler.MarketHandler
	Stakes      *handler.StakeHandler
	Resolutions *handler.ResolutionHandler
	Claims      *handler.ClaimHandler
}

// Server is the HTTP + WebSocket API server for the settlement engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter may be nil,
// in which case claim rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required at the route level; the auth middleware
	// wraps everything, matching the deployment model of a private API).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market lifecycle.
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/events", handlers.Markets.ListEvents)
	mux.HandleFunc("POST /api/admin/pause", handlers.Markets.SetPaused)

	// Stakes.
	mux.HandleFunc("POST /api/markets/{id}/stakes", handlers.Stakes.PlaceStake)
	mux.HandleFunc("GET /api/markets/{id}/stakes", handlers.Stakes.ListStakes)

	// Resolution state machine.
	mux.HandleFunc("POST /api/markets/{id}/propose", handlers.Resolutions.Propose)
	mux.HandleFunc("POST /api/markets/{id}/finalize", handlers.Resolutions.Finalize)
	mux.HandleFunc("POST /api/markets/{id}/reverse", handlers.Resolutions.Reverse)

	// Claims, with their own rate limit.
	claimLimit := func(h http.HandlerFunc) http.Handler {
		if limiter == nil || cfg.ClaimRateLimit <= 0 {
			return h
		}
		return middleware.ClaimRateLimit(limiter, cfg.ClaimRateLimit, cfg.ClaimRateWindow, logger)(h)
	}
	mux.Handle("POST /api/markets/{id}/claims/winnings", claimLimit(handlers.Claims.ClaimWinnings))
	mux.Handle("POST /api/markets/{id}/claims/refund", claimLimit(handlers.Claims.ClaimRefund))
	mux.Handle("POST /api/markets/{id}/claims/creator-fees", claimLimit(handlers.Claims.ClaimCreatorFees))
	mux.Handle("POST /api/markets/{id}/claims/platform-fees", claimLimit(handlers.Claims.ClaimPlatformFees))
	mux.HandleFunc("GET /api/markets/{id}/claimable", handlers.Claims.Claimable)

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.APIKey(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
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
