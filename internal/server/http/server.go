// Package httpserver provides the HTTP REST API for Shelfarr.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/shelfarr/shelfarr/internal/database"
	"github.com/shelfarr/shelfarr/internal/domain"
	"github.com/shelfarr/shelfarr/internal/lifecycle"
	"github.com/shelfarr/shelfarr/internal/repository"
)

// RequestLifecycle is the request state-machine surface the API exposes;
// satisfied by *lifecycle.Manager.
type RequestLifecycle interface {
	CreateRequest(ctx context.Context, workID uuid.UUID, userID string, role domain.UserRole, priority int) (*domain.Request, []lifecycle.Effect, error)
	Approve(ctx context.Context, id uuid.UUID, candidate []byte) (*domain.Request, []lifecycle.Effect, error)
	Deny(ctx context.Context, id uuid.UUID) (*domain.Request, []lifecycle.Effect, error)
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Request, []lifecycle.Effect, error)
	Delete(ctx context.Context, id uuid.UUID, deletedBy string) (*lifecycle.DeletionReport, error)
}

// Acquirer runs acquisition passes; satisfied by *orchestrator.Orchestrator.
type Acquirer interface {
	ProcessRequest(ctx context.Context, requestID uuid.UUID) error
	SubmitApproved(ctx context.Context, requestID uuid.UUID) error
}

// EffectSink persists lifecycle effects; satisfied by *outbox.Emitter.
type EffectSink interface {
	EmitEffects(ctx context.Context, db database.DBTX, effects []lifecycle.Effect) error
}

// HealthChecker reports storage health; satisfied by *database.DB.
type HealthChecker interface {
	Health(ctx context.Context) database.HealthStatus
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// SearchTimeout bounds the background acquisition pass a create or
	// search trigger starts.
	SearchTimeout time.Duration
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	manager    RequestLifecycle
	acquirer   Acquirer
	effects    EffectSink
	requests   repository.RequestRepository
	works      repository.WorkRepository
	downloads  repository.DownloadRepository
	health     HealthChecker
	validate   *validator.Validate
	bg         backgroundRunner
	searchWait time.Duration
	logger     zerolog.Logger
}

// backgroundRunner starts the detached acquisition goroutine. Tests swap it
// out to run passes synchronously.
type backgroundRunner func(timeout time.Duration, fn func(ctx context.Context))

func goRunner(timeout time.Duration, fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		fn(ctx)
	}()
}

// NewServer creates an HTTP server with all dependencies.
func NewServer(
	cfg Config,
	manager RequestLifecycle,
	acquirer Acquirer,
	effects EffectSink,
	requests repository.RequestRepository,
	works repository.WorkRepository,
	downloads repository.DownloadRepository,
	health HealthChecker,
	logger zerolog.Logger,
) *Server {
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 5 * time.Minute
	}

	s := &Server{
		manager:    manager,
		acquirer:   acquirer,
		effects:    effects,
		requests:   requests,
		works:      works,
		downloads:  downloads,
		health:     health,
		validate:   validator.New(),
		bg:         goRunner,
		searchWait: cfg.SearchTimeout,
		logger:     logger.With().Str("component", "http-server").Logger(),
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogMiddleware)
	r.Use(jsonContentTypeMiddleware)

	r.Get("/healthz", s.healthHandler)
	r.Get("/readyz", s.readinessHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(userContextMiddleware)

		r.Post("/requests", s.createRequest)
		r.Get("/requests", s.listRequests)
		r.Get("/requests/{requestID}", s.getRequest)
		r.Delete("/requests/{requestID}", s.deleteRequest)
		r.Post("/requests/{requestID}/approve", s.approveRequest)
		r.Post("/requests/{requestID}/deny", s.denyRequest)
		r.Post("/requests/{requestID}/cancel", s.cancelRequest)
		r.Post("/requests/{requestID}/search", s.triggerSearch)
	})

	return r
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status == "healthy" {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": health.Status})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status":   "unhealthy",
		"database": health.Status,
		"error":    health.Error,
	})
}

// readinessHandler reports whether the service can take traffic.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	health := s.health.Health(r.Context())
	if health.Status != "healthy" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "not_ready",
			"database": health.Status,
			"error":    health.Error,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ready",
		"database": "healthy",
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
