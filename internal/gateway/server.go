package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/veilhq/veil/internal/audit"
	"github.com/veilhq/veil/internal/config"
	"github.com/veilhq/veil/internal/logger"
	"github.com/veilhq/veil/internal/pii"
	"github.com/veilhq/veil/internal/policy"
	"github.com/veilhq/veil/internal/web"
	"github.com/veilhq/veil/internal/websocket"
)

// TokenResolver resolves masking tokens back to their original values.
type TokenResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// Server represents the masking gateway server
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	engine   *pii.Engine
	policy   *policy.Context
	audit    audit.Store
	resolver TokenResolver
	router   *mux.Router
	server   *http.Server
	wsHub    *websocket.Hub
	limiters *limiterPool
}

// New creates a new gateway server instance
func New(cfg *config.Config, log *logger.Logger, pol *policy.Context, auditStore audit.Store, resolver TokenResolver) (*Server, error) {
	engine := pii.New(log.WithComponent("pii"))

	wsHub := websocket.NewHub(&websocket.HubConfig{
		MaxConnections:  cfg.WebSocket.MaxConnections,
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		AllowedOrigins:  cfg.WebSocket.AllowedOrigins,
	}, log.WithComponent("websocket").Logger)

	router := mux.NewRouter()

	server := &Server{
		config:   cfg,
		logger:   log.WithComponent("gateway"),
		engine:   engine,
		policy:   pol,
		audit:    auditStore,
		resolver: resolver,
		router:   router,
		wsHub:    wsHub,
		limiters: newLimiterPool(cfg.RateLimit),
	}

	server.setupRoutes()

	server.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return server, nil
}

// Engine exposes the detection engine for token store wiring
func (s *Server) Engine() *pii.Engine {
	return s.engine
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Info endpoint
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	// Dashboard endpoint - embedded HTML
	s.router.HandleFunc("/", web.ServeDashboard).Methods("GET")
	s.router.HandleFunc("/dashboard", web.ServeDashboard).Methods("GET")

	// WebSocket endpoint for dashboard
	if s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.handleWebSocket).Methods("GET")
	}

	// Privacy settings API
	settings := s.router.PathPrefix("/api/v1/settings").Subrouter()
	settings.Use(s.loggingMiddleware)
	settings.HandleFunc("", s.handleGetSettings).Methods("GET")
	settings.HandleFunc("/level", s.handleSetLevel).Methods("PUT")
	settings.HandleFunc("/categories/{category}", s.handleToggleCategory).Methods("PUT")
	settings.HandleFunc("/consent", s.handleSetConsent).Methods("PUT")

	// Masking utilities
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.HandleFunc("/preview", s.handlePreview).Methods("POST")
	api.HandleFunc("/classify", s.handleClassify).Methods("POST")
	api.HandleFunc("/detokenize", s.handleDetokenize).Methods("POST")
	api.HandleFunc("/audit/events", s.handleAuditEvents).Methods("GET")
	api.HandleFunc("/audit/stats", s.handleAuditStats).Methods("GET")

	// Protected proxy endpoints
	for _, prefix := range s.config.Gateway.ProtectedPrefixes {
		protected := s.router.PathPrefix(prefix).Subrouter()
		protected.Use(s.loggingMiddleware)
		protected.Use(s.rateLimitMiddleware)
		protected.Use(s.maskingMiddleware)
		protected.PathPrefix("/").HandlerFunc(s.handleProxy)
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting Veil gateway server",
		zap.Int("port", s.config.Server.Port),
		zap.String("upstream", s.config.Gateway.Upstream),
		zap.Strings("protected_prefixes", s.config.Gateway.ProtectedPrefixes),
	)

	// Start WebSocket hub in a separate goroutine
	go s.wsHub.Run()

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Veil gateway server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{
		"name":"veil",
		"version":"0.1.0",
		"privacy_level":%q,
		"rules_count":%d
	}`, s.policy.Level(), len(pii.Categories()))
}

// handleWebSocket handles WebSocket connections for the dashboard
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}

// GetWebSocketHub returns the WebSocket hub for broadcasting events
func (s *Server) GetWebSocketHub() *websocket.Hub {
	return s.wsHub
}
