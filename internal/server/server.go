// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/koredeycode/moltbet/internal/agent"
	"github.com/koredeycode/moltbet/internal/auth"
	"github.com/koredeycode/moltbet/internal/bet"
	"github.com/koredeycode/moltbet/internal/config"
	"github.com/koredeycode/moltbet/internal/dispute"
	"github.com/koredeycode/moltbet/internal/health"
	"github.com/koredeycode/moltbet/internal/logging"
	"github.com/koredeycode/moltbet/internal/metrics"
	"github.com/koredeycode/moltbet/internal/notify"
	"github.com/koredeycode/moltbet/internal/paywall"
	"github.com/koredeycode/moltbet/internal/ratelimit"
	"github.com/koredeycode/moltbet/internal/realtime"
	"github.com/koredeycode/moltbet/internal/security"
	"github.com/koredeycode/moltbet/internal/settlement"
	"github.com/koredeycode/moltbet/internal/traces"
	"github.com/koredeycode/moltbet/internal/validation"
	"github.com/koredeycode/moltbet/internal/wallet"
)

// demoEscrowAddr stands in for the escrow wallet when no private key is
// configured. Demo settlements never touch a chain.
const demoEscrowAddr = "0x9999999999999999999999999999999999999999"

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	wallet      *wallet.Wallet // nil in demo mode
	facilitator settlement.Facilitator
	authMgr     *auth.Manager
	agents      *agent.Service
	inbox       *notify.Service
	bets        *bet.Service
	betTimer    *bet.Timer
	adjudicator *dispute.Adjudicator
	hub         *realtime.Hub
	gate        *paywall.Gate
	rateLimiter *ratelimit.Limiter
	checks      *health.Registry
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithFacilitator sets a custom settlement facilitator (for testing)
func WithFacilitator(f settlement.Facilitator) Option {
	return func(s *Server) {
		s.facilitator = f
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set facilitator/logger)
	for _, opt := range opts {
		opt(s)
	}

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		agentStore  agent.Store
		authStore   auth.Store
		notifyStore notify.Store
		betStore    bet.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		agentStore = agent.NewPostgresStore(db)
		authStore = auth.NewPostgresStore(db)
		notifyStore = notify.NewPostgresStore(db)
		betStore = bet.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.checks.Register("database", func(ctx context.Context) health.Status {
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		agentStore = agent.NewMemoryStore()
		authStore = auth.NewMemoryStore()
		notifyStore = notify.NewMemoryStore()
		betStore = bet.NewMemoryStore()
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	s.authMgr = auth.NewManager(authStore)
	s.agents = agent.NewService(agentStore, s.authMgr)
	s.inbox = notify.NewService(notifyStore)

	// Settlement and payment verification. With a private key the escrow
	// wallet moves real USDC; without one (development) both sides are
	// simulated.
	escrowAddr := demoEscrowAddr
	var verifier paywall.Verifier = paywall.DemoVerifier{Addr: demoEscrowAddr}
	if cfg.PrivateKey != "" {
		w, err := wallet.New(wallet.Config{
			RPCURL:       cfg.RPCURL,
			PrivateKey:   cfg.PrivateKey,
			ChainID:      cfg.ChainID,
			USDCContract: cfg.USDCContract,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create wallet: %w", err)
		}
		s.wallet = w
		escrowAddr = w.Address()
		verifier = w
		if s.facilitator == nil {
			s.facilitator = settlement.NewWalletFacilitator(w)
		}
		s.logger.Info("escrow wallet enabled", "address", escrowAddr)

		s.checks.Register("rpc", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if _, err := w.BalanceOf(ctx, common.Address{}); err != nil {
				return health.Status{Name: "rpc", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "rpc", Healthy: true}
		})
	} else if s.facilitator == nil {
		s.facilitator = settlement.NewDemoFacilitator()
		s.logger.Info("demo settlement enabled (no private key, funds are simulated)")
	}

	// Payment gate collects stakes on propose and counter
	s.gate = paywall.NewGate(paywall.Config{
		Verifier: verifier,
		Chain:    "base-sepolia",
		ChainID:  cfg.ChainID,
		Contract: cfg.USDCContract,
		OnPaymentReceived: func(proof *paywall.PaymentProof, route string) {
			s.logger.Info("stake payment received",
				"tx_hash", proof.TxHash,
				"from", proof.From,
				"route", route,
			)
		},
		OnPaymentFailed: func(proof *paywall.PaymentProof, err error) {
			s.logger.Warn("stake payment failed",
				"tx_hash", proof.TxHash,
				"error", err,
			)
		},
	})

	// Realtime hub for the WebSocket bet feed
	s.hub = realtime.NewHub(s.logger)

	// Bet lifecycle service with all the trimmings
	s.bets = bet.NewService(betStore, s.facilitator, s.agents, bet.Options{
		MinStake:      cfg.MinStake,
		MaxStake:      cfg.MaxStake,
		OfferTTL:      cfg.DefaultOfferTTL,
		DisputeWindow: cfg.DisputeWindow,
	}).
		WithActionLimiter(ratelimit.NewActionLimiter(cfg.ActionsPerMinute)).
		WithNotifier(s.inbox).
		WithBroadcaster(s.hub)

	s.adjudicator = dispute.NewAdjudicator(s.bets)

	// Background sweeps (both off unless enabled in config)
	s.betTimer = bet.NewTimer(s.bets, time.Minute, cfg.SweepExpiredOffers, cfg.SweepClaimTimeouts)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/", s.infoHandler)

	// WebSocket for the real-time bet feed
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	// V1 API group
	v1 := s.router.Group("/v1")

	// Platform info (escrow address, limits, windows)
	v1.GET("/platform", s.platformHandler)

	// Soft auth on everything under /v1: sets the agent ID when a valid
	// API key is present, individual groups decide whether to require it
	v1.Use(auth.Middleware(s.authMgr))

	// Authenticated group for state-changing agent actions
	authed := v1.Group("")
	authed.Use(auth.RequireAuth(s.authMgr))

	// Admin group (operator only)
	admin := v1.Group("/admin")
	admin.Use(auth.RequireAdmin(s.cfg.AdminSecret))

	// Agents: registration and directory are public, suspension is admin
	agentHandler := agent.NewHandler(s.agents)
	agentHandler.RegisterRoutes(v1)
	agentHandler.RegisterAdminRoutes(admin)

	// Bets: feed and reads are public, transitions require auth
	betHandler := bet.NewHandler(s.bets, s.gate)
	betHandler.RegisterRoutes(v1, authed)

	// Disputes: reads are public, responding requires auth, resolution is admin
	disputeHandler := dispute.NewHandler(s.adjudicator)
	disputeHandler.RegisterRoutes(v1, authed)
	disputeHandler.RegisterAdminRoutes(admin)

	// Notification inbox (always authed)
	notifyHandler := notify.NewHandler(s.inbox)
	notifyHandler.RegisterRoutes(authed)

	// Feed hub statistics for operators
	admin.GET("/stats", s.statsHandler)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.checks.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Moltbet",
		"description": "Peer-to-peer betting for autonomous agents",
		"version":     "0.1.0",
		"chain":       "base-sepolia",
		"currency":    "USDC",
	})
}

// platformHandler returns platform info including the escrow address
func (s *Server) platformHandler(c *gin.Context) {
	escrowAddr := demoEscrowAddr
	if s.wallet != nil {
		escrowAddr = s.wallet.Address()
	}

	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":          "Moltbet",
			"version":       "0.1.0",
			"escrowAddress": escrowAddr,
			"chain":         "base-sepolia",
			"chainId":       s.cfg.ChainID,
			"usdcContract":  s.cfg.USDCContract,
			"minStake":      s.cfg.MinStake,
			"maxStake":      s.cfg.MaxStake,
			"offerTtl":      s.cfg.DefaultOfferTTL.String(),
			"disputeWindow": s.cfg.DisputeWindow.String(),
		},
		"instructions": gin.H{
			"register": "POST /v1/agents with name and payout_address. Store the returned API key. Betting opens once an operator verifies the agent.",
			"propose":  "POST /v1/bets. Pay the stake when challenged with 402 and retry with X-Payment-Proof.",
			"counter":  "POST /v1/bets/{id}/counter with a matching stake payment.",
			"settle":   "Winner is paid 2x stake to their payout address on resolution.",
		},
	})
}

// statsHandler returns operational counters for the admin dashboard
func (s *Server) statsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"feed": s.hub.Stats(),
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Traces (no-op when no OTLP endpoint is configured)
	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.hub.Run(runCtx)

	// Start bet sweeps (no-op when both are disabled)
	s.betTimer.Start(runCtx)

	// Export connection pool stats
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeps)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop bet sweeps
	if s.betTimer != nil {
		s.betTimer.Stop()
		s.logger.Info("bet sweeps stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Warn("trace shutdown error", "error", err)
		}
	}

	// Close wallet connection
	if s.wallet != nil {
		if err := s.wallet.Close(); err != nil {
			s.logger.Error("wallet close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
