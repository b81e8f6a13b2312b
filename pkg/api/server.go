// Package api serves the account and transaction queries over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/chainquery/internal/constants"
	apimiddleware "github.com/0xmhha/chainquery/pkg/api/middleware"
	"github.com/0xmhha/chainquery/pkg/types"
	"github.com/0xmhha/chainquery/pkg/types/chain"
)

// Querier answers account and transaction queries across chains.
// *resolver.Engine satisfies it.
type Querier interface {
	ResolveAccounts(ctx context.Context, ids []types.EntityID, fields []types.AccountField, targets []chain.Target) ([]*types.AccountResult, error)
	ResolveTransactions(ctx context.Context, q *types.TransactionQuery, targets []chain.Target) ([]*types.TransactionResult, error)
}

// Server represents the API server
type Server struct {
	config    *Config
	logger    *zap.Logger
	engine    Querier
	health    HealthChecker
	router    *chi.Mux
	server    *http.Server
	limiter   *apimiddleware.RateLimiter
	startedAt time.Time
}

// NewServer creates a new API server. health may be nil.
func NewServer(config *Config, engine Querier, health HealthChecker, logger *zap.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if engine == nil {
		return nil, errors.New("query engine cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:    config,
		logger:    logger.Named("api"),
		engine:    engine,
		health:    health,
		router:    chi.NewRouter(),
		startedAt: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

// setupMiddleware configures the middleware stack
func (s *Server) setupMiddleware() {
	// Recovery must be outermost
	s.router.Use(apimiddleware.Recovery(s.logger))
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(apimiddleware.Tracing)
	s.router.Use(apimiddleware.LoggerWithLevel(s.logger))

	if s.config.EnableRateLimit {
		s.limiter = apimiddleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.logger)
		s.router.Use(s.limiter.Middleware)
		s.logger.Info("rate limiting enabled",
			zap.Float64("rate_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst),
		)
	}
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.Get(constants.DefaultHealthPath, s.handleHealth)
	s.router.Get(constants.DefaultVersionPath, s.handleVersion)
	s.router.Handle(constants.DefaultMetricsPath, promhttp.Handler())

	s.router.Post(constants.DefaultAccountsPath, s.handleAccounts)
	s.router.Post(constants.DefaultTransactionsPath, s.handleTransactions)
}

// VersionResponse is returned by /version
type VersionResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, VersionResponse{Name: constants.DefaultServiceName, Version: s.config.Version})
}

// Start starts the API server and blocks until it is stopped
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("address", s.config.Address()))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.limiter != nil {
		s.limiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info("API server stopped gracefully")
	return nil
}

// Router returns the underlying chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
