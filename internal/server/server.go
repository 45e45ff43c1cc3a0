// Package server exposes the auction over HTTP: a method-routed ServeMux,
// signed-caller authentication, and a websocket feed of journal events.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/shareauction/internal/domain"
	"github.com/alanyoungcy/shareauction/internal/server/handler"
	"github.com/alanyoungcy/shareauction/internal/server/middleware"
	"github.com/alanyoungcy/shareauction/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// MaxClockSkew bounds the age of a signed request timestamp.
	MaxClockSkew time.Duration
	// RateLimit requests per RateWindow per caller; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Registry    *handler.RegistryHandler
	Bids        *handler.BidHandler
	Allocations *handler.AllocationHandler
	Settlement  *handler.SettlementHandler
	Journal     *handler.JournalHandler
}

// Server is the HTTP + WebSocket API of the auction daemon.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// Backends are the shared stores the middleware chain uses. Either may be
// nil: a nil Limiter disables rate limiting and a nil Nonces keeps request
// nonces in memory.
type Backends struct {
	Limiter domain.RateLimiter
	Nonces  domain.NonceStore
}

// NewServer registers every route and wraps the mux in the middleware
// chain. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, backends Backends, logger *slog.Logger) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, wsHub, backends, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, backends Backends, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Registry.
	mux.HandleFunc("GET /api/registry/authorities", handlers.Registry.ListAuthorities)
	mux.HandleFunc("GET /api/registry/authorities/{address}", handlers.Registry.GetAuthority)
	mux.HandleFunc("POST /api/registry/authorities", handlers.Registry.AddAuthority)
	mux.HandleFunc("DELETE /api/registry/authorities/{address}", handlers.Registry.RevokeAuthority)

	// Bidding and reveal.
	mux.HandleFunc("POST /api/bids", handlers.Bids.PlaceBid)
	mux.HandleFunc("POST /api/bids/withdraw", handlers.Bids.WithdrawBid)
	mux.HandleFunc("GET /api/bids/{address}", handlers.Bids.GetBids)
	mux.HandleFunc("POST /api/reveal", handlers.Bids.Reveal)
	mux.HandleFunc("POST /api/admin/bids/purge", handlers.Bids.PurgeBids)

	// Allocation.
	mux.HandleFunc("POST /api/admin/investors", handlers.Allocations.LoadInvestors)
	mux.HandleFunc("GET /api/investors/verify", handlers.Allocations.VerifyOrder)
	mux.HandleFunc("GET /api/investors/{index}", handlers.Allocations.GetInvestor)
	mux.HandleFunc("POST /api/admin/distribute", handlers.Allocations.Distribute)
	mux.HandleFunc("GET /api/allocations", handlers.Allocations.ListAllocations)

	// Settlement and shares.
	mux.HandleFunc("POST /api/admin/payment", handlers.Settlement.TransferPayment)
	mux.HandleFunc("POST /api/refunds", handlers.Settlement.ClaimRefund)
	mux.HandleFunc("GET /api/escrow/{address}", handlers.Settlement.GetEscrow)
	mux.HandleFunc("GET /api/shares/{address}", handlers.Settlement.GetBalance)
	mux.HandleFunc("POST /api/shares/transfer", handlers.Settlement.TransferShares)

	// Journal, reports, audit.
	mux.HandleFunc("GET /api/events", handlers.Journal.ListEvents)
	mux.HandleFunc("GET /api/reports", handlers.Journal.ListReports)
	mux.HandleFunc("GET /api/reports/{name}", handlers.Journal.GetReport)
	mux.HandleFunc("GET /api/audit", handlers.Journal.ListAudit)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Innermost first: rate limiting needs the caller set by auth.
	var h http.Handler = mux
	if backends.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(backends.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.CallerAuth(cfg.MaxClockSkew, backends.Nonces, nil)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
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
