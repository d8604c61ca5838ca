// Package server provides the HTTP server and routing for the treasury engine.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/di"
	"github.com/aristath/treasury/internal/metrics"
	batcheshandlers "github.com/aristath/treasury/internal/modules/batches/handlers"
	emergencyhandlers "github.com/aristath/treasury/internal/modules/emergency/handlers"
	fundinghandlers "github.com/aristath/treasury/internal/modules/funding/handlers"
	historyhandlers "github.com/aristath/treasury/internal/modules/history/handlers"
	ledgerhandlers "github.com/aristath/treasury/internal/modules/ledger/handlers"
	settingshandlers "github.com/aristath/treasury/internal/modules/settings/handlers"
	withdrawalhandlers "github.com/aristath/treasury/internal/modules/withdrawals/handlers"
)

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
	Port      int
	DevMode   bool
}

// Server represents the HTTP server.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	cfg       *config.Config
	container *di.Container
	limiter   *rate.Limiter
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		// Token bucket shared by all clients. The engine fronts a small
		// governance surface, not public traffic.
		limiter: rate.NewLimiter(rate.Limit(50), 100),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Request duration metrics
	s.router.Use(s.metricsMiddleware)

	// Rate limiting
	s.router.Use(s.rateLimitMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Principal"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container

	// Health check and Prometheus scrape endpoint sit outside /api.
	s.router.Get("/health", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", metrics.Handler(c.PromRegistry))

	ledgerHandler := ledgerhandlers.NewHandler(c.LedgerService, c.Auth, s.log)
	historyHandler := historyhandlers.NewHandler(c.HistoryService, s.log)
	withdrawalHandler := withdrawalhandlers.NewHandler(c.WithdrawalService, c.Auth, s.log)
	batchHandler := batcheshandlers.NewHandler(c.BatchService, c.Auth, s.log)
	emergencyHandler := emergencyhandlers.NewHandler(c.EmergencyControl, c.Auth, s.log)
	fundingHandler := fundinghandlers.NewHandler(c.FundingService, c.Auth, s.log)
	settingsHandler := settingshandlers.NewHandler(c.SettingsService, c.Auth, s.log)
	systemHandler := NewSystemHandlers(s.cfg.DataDir, c.Databases(), c.EventManager, s.log)
	eventsStream := NewEventsStreamHandler(c.EventManager, s.log)

	s.router.Route("/api", func(r chi.Router) {
		// Live event stream (WebSocket)
		r.Get("/events/stream", eventsStream.ServeHTTP)

		r.Route("/treasury", func(r chi.Router) {
			ledgerHandler.RegisterRoutes(r)
			r.Get("/balance", historyHandler.HandleGetBalance)
			r.Get("/metrics", historyHandler.HandleGetMetrics)
		})

		historyHandler.RegisterRoutes(r)
		withdrawalHandler.RegisterRoutes(r)
		batchHandler.RegisterRoutes(r)
		emergencyHandler.RegisterRoutes(r)
		fundingHandler.RegisterRoutes(r)
		settingsHandler.RegisterRoutes(r)

		r.Get("/system/status", systemHandler.HandleSystemStatus)
		r.Get("/system/database/stats", systemHandler.HandleDatabaseStats)
	})
}

// handleHealth reports liveness plus a ping of both databases.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	for name, db := range s.container.Databases() {
		if err := db.Conn().PingContext(ctx); err != nil {
			s.log.Error().Err(err).Str("database", name).Msg("Health check ping failed")
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"status":%q,"paused":%t}`, status, s.container.EmergencyControl.Paused())
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// metricsMiddleware records request durations against the matched route
// pattern rather than the raw path, keeping label cardinality bounded.
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.container.Metrics.RequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

// rateLimitMiddleware rejects requests above the shared token bucket rate.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
