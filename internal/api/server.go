// Package api provides the HTTP surface: health, Prometheus metrics and the
// payment provider webhook.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wallet-watch/internal/circuitbreaker"
	"github.com/wallet-watch/internal/logging"
	"github.com/wallet-watch/internal/metrics"
	"github.com/wallet-watch/internal/service"
	"github.com/wallet-watch/internal/worker"
)

// Pinger checks that the store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckoutApplier applies confirmed payments
type CheckoutApplier interface {
	ApplyCheckout(ctx context.Context, c service.CheckoutCompleted) error
}

// SweepStatusProvider reports sweep worker state
type SweepStatusProvider interface {
	GetStatus() *worker.SweepWorkerStatus
}

// BreakerStatsProvider reports the explorer circuit breaker
type BreakerStatsProvider interface {
	BreakerStats() circuitbreaker.Stats
}

// Dependencies are the components the server reports on or delegates to.
// Nil members disable the related route or health section.
type Dependencies struct {
	Store    Pinger
	Checkout CheckoutApplier
	Worker   SweepStatusProvider
	Explorer BreakerStatsProvider
	Metrics  *metrics.Metrics
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
	config     *ServerConfig
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	WebhookSecret   string
	WebhookRPS      int // per client IP
	PingTimeout     time.Duration
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	if config.PingTimeout <= 0 {
		config.PingTimeout = 2 * time.Second
	}
	if config.WebhookRPS <= 0 {
		config.WebhookRPS = 5
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
		config: config,
		logger: logging.GetGlobalLogger().WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter() {
	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	if s.deps.Metrics != nil {
		s.router.Handle("/metrics", s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	if s.deps.Checkout != nil {
		webhooks := s.router.PathPrefix("/webhooks").Subrouter()
		webhooks.Use(RateLimitMiddleware(NewRateLimiter(s.config.WebhookRPS, 10)))
		webhooks.HandleFunc("/payment", s.handlePaymentWebhook).Methods(http.MethodPost)
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string                    `json:"status"`
	Service  string                    `json:"service"`
	Store    string                    `json:"store,omitempty"`
	Sweep    *worker.SweepWorkerStatus `json:"sweep,omitempty"`
	Explorer *circuitbreaker.Stats     `json:"explorer,omitempty"`
	Time     time.Time                 `json:"time"`
}

// handleHealth reports liveness. Only an unreachable store makes it fail;
// an open explorer breaker is reported but the process is still alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "healthy",
		Service: "wallet-watch",
		Time:    time.Now().UTC(),
	}
	status := http.StatusOK

	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.config.PingTimeout)
		defer cancel()
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check: store unreachable")
			resp.Status = "unhealthy"
			resp.Store = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Store = "ok"
		}
	}
	if s.deps.Worker != nil {
		resp.Sweep = s.deps.Worker.GetStatus()
	}
	if s.deps.Explorer != nil {
		stats := s.deps.Explorer.BreakerStats()
		resp.Explorer = &stats
		if stats.State == circuitbreaker.StateOpen && resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	respondJSON(w, status, resp)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
