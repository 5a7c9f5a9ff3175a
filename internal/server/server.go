// Package server provides the HTTP REST API for ingesting jobs, ranking
// matches and tracking applications.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/applier/internal/application"
	"github.com/jonathan/applier/internal/dedup"
	"github.com/jonathan/applier/internal/ingestion"
	"github.com/jonathan/applier/internal/matching"
	"github.com/jonathan/applier/internal/server/middleware"
	"github.com/jonathan/applier/internal/server/ratelimit"
	"github.com/jonathan/applier/internal/store"
	"github.com/jonathan/applier/internal/vectorindex"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; ingest batches carry full descriptions
const maxBodyBytes = 16 << 20

// ResumeSource returns the embedded resume matching runs score against
type ResumeSource func(ctx context.Context) (matching.Resume, error)

// Config holds server configuration
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// RateLimit nil disables rate limiting
	RateLimit *ratelimit.Config
}

// Deps are the components the handlers call into
type Deps struct {
	Store        store.Store
	Gate         *dedup.Gate
	Feed         *ingestion.FeedReader
	Engine       *matching.Engine
	Applications *application.Service
	Resume       ResumeSource
	Logger       *zap.Logger
}

// Server represents the HTTP server
type Server struct {
	httpServer      *http.Server
	handler         http.Handler
	shutdownTimeout time.Duration

	store        store.Store
	gate         *dedup.Gate
	feed         *ingestion.FeedReader
	engine       *matching.Engine
	applications *application.Service
	resume       ResumeSource

	rateLimiter *ratelimit.Limiter
	validator   *validator.Validate
	logger      *zap.Logger
}

// New creates a new server instance
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Store == nil || deps.Gate == nil || deps.Engine == nil || deps.Applications == nil {
		return nil, errors.New("server requires a store, dedup gate, matching engine and application service")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		store:           deps.Store,
		gate:            deps.Gate,
		feed:            deps.Feed,
		engine:          deps.Engine,
		applications:    deps.Applications,
		resume:          deps.Resume,
		validator:       validator.New(),
		logger:          logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
	if s.shutdownTimeout <= 0 {
		s.shutdownTimeout = 10 * time.Second
	}

	rlConfig := cfg.RateLimit
	if rlConfig == nil {
		rlConfig = &ratelimit.Config{Enabled: false}
	}
	s.rateLimiter = ratelimit.NewLimiter(rlConfig)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	// Jobs
	mux.HandleFunc("POST /jobs/ingest", s.handleIngest)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleDeleteJob)
	mux.HandleFunc("POST /jobs/{id}/reject", s.handleRejectJob)

	// Matching
	mux.HandleFunc("POST /matching/run", s.handleRunMatching)
	mux.HandleFunc("GET /matching/top", s.handleTopMatches)

	// Applications
	mux.HandleFunc("POST /jobs/{id}/applications", s.handleCreateApplication)
	mux.HandleFunc("GET /jobs/{id}/applications", s.handleListJobApplications)
	mux.HandleFunc("GET /applications/{id}", s.handleGetApplication)
	mux.HandleFunc("PUT /applications/{id}/resume", s.handleAttachResume)
	mux.HandleFunc("PUT /applications/{id}/cover-letter", s.handleAttachCoverLetter)
	mux.HandleFunc("PUT /applications/{id}/screenshot", s.handleAttachScreenshot)
	mux.HandleFunc("PUT /applications/{id}/notes", s.handleSetNotes)
	mux.HandleFunc("POST /applications/{id}/submit", s.handleSubmit)
	mux.HandleFunc("POST /applications/{id}/fail", s.handleFail)

	s.handler = middleware.Recover(logger)(s.withRateLimit(middleware.Logging(logger)(s.withCORS(mux))))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the fully wrapped router
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		s.rateLimiter.Stop()
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	defer s.rateLimiter.Stop()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Close releases background resources without serving
func (s *Server) Close() {
	s.rateLimiter.Stop()
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit rejects requests over the client's budget with 429
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.rateLimiter.Allow(extractClientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(info.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
		}
		if !allowed {
			retryAfter := int(info.RetryAfter.Round(time.Second).Seconds())
			retryAfter = max(retryAfter, 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			s.logger.Warn("rate limit exceeded",
				zap.String("client", extractClientID(r)),
				zap.String("path", r.URL.Path),
				zap.Int("retry_after", retryAfter),
			)
			s.jsonResponse(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractClientID uses the remote IP; forwarded headers are not trusted
func extractClientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// HealthResponse reports liveness and index state
type HealthResponse struct {
	Status string            `json:"status"`
	Index  vectorindex.Stats `json:"index"`
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{Status: "ok", Index: s.engine.Index().Stats()})
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("failed to encode response", zap.Error(err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, ErrorResponse{Error: message})
}

// serviceError maps a component error to its status. Unexpected errors are
// logged and hidden from the client.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		s.errorResponse(w, status, "internal server error")
		return
	}
	s.jsonResponse(w, status, errorBody(err))
}
