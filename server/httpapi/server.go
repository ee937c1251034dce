// Package httpapi exposes the webhook and operational HTTP endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailsage/mailsage/content"
	"github.com/mailsage/mailsage/logger"
	"github.com/mailsage/mailsage/processor"
)

// Dependencies reports which collaborators are configured, for /health.
type Dependencies struct {
	Analysis   bool `json:"analysis"`
	Delivery   bool `json:"delivery"`
	Database   bool `json:"database"`
	Rasterizer bool `json:"rasterizer"`
}

// Server is the HTTP front of the service.
type Server struct {
	addr          string
	proc          *processor.Processor
	deps          Dependencies
	enableMetrics bool
	shutdownGrace time.Duration
	startedAt     time.Time
	server        *http.Server
}

// ServerOptions holds configuration for the HTTP server.
type ServerOptions struct {
	Addr          string
	Dependencies  Dependencies
	EnableMetrics bool
	ShutdownGrace time.Duration
}

// New creates the HTTP server around a processor.
func New(proc *processor.Processor, options ServerOptions) *Server {
	return &Server{
		addr:          options.Addr,
		proc:          proc,
		deps:          options.Dependencies,
		enableMetrics: options.EnableMetrics,
		shutdownGrace: options.ShutdownGrace,
		startedAt:     time.Now(),
	}
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:    s.addr,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down HTTP server", "error", err)
		}
	}()

	logger.Info("Starting HTTP server", "addr", s.addr)
	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed && ctx.Err() == nil {
		return err
	}
	return nil
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.loggingMiddleware)

	router.HandleFunc("/webhook/inbound-email", s.handleWebhook).Methods("POST")
	router.HandleFunc("/webhook/inbound-email", s.handleWebhookHandshake).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.enableMetrics {
		router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	}

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP request",
			"method", r.Method, "path", r.URL.Path,
			"remote", r.RemoteAddr, "duration", time.Since(start))
	})
}

// handleWebhook decodes one inbound email event and runs it through the
// pipeline. Handled outcomes (including classified content/analysis
// failures) ack with 200; unauthorized senders get the fixed 403 denial;
// payload-shape violations and unclassified failures return 500 so the
// upstream provider retries.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var env content.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		logger.Warn("Malformed webhook payload", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Invalid payload",
		})
		return
	}
	if env.From == "" {
		logger.Warn("Webhook payload missing sender address")
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Invalid payload",
		})
		return
	}

	switch s.proc.Process(r.Context(), &env) {
	case processor.OutcomeUnauthorized:
		s.writeJSON(w, http.StatusForbidden, map[string]any{
			"success": false,
			"error":   "Unauthorized sender",
		})
	case processor.OutcomeInternalError:
		s.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Internal processing error",
		})
	default:
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

// handleWebhookHandshake answers the provider's readiness probe on the
// webhook path.
func (s *Server) handleWebhookHandshake(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"dependencies":   s.deps,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Error encoding JSON response", "error", err)
	}
}
