package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
	"github.com/kubilitics/couchdb-mcp/internal/config"
	mcpserver "github.com/kubilitics/couchdb-mcp/internal/mcp/server"
	"github.com/kubilitics/couchdb-mcp/internal/metrics"
	"github.com/kubilitics/couchdb-mcp/internal/middleware"
)

const (
	// maxRequestBody caps JSON-RPC request bodies
	maxRequestBody = 4 << 20

	shutdownTimeout = 10 * time.Second
)

// Server serves the MCP endpoint, the audit API, the live audit feed and
// Prometheus metrics.
type Server struct {
	config   *config.Config
	mcp      mcpserver.MCPServer
	auditLog *audit.Logger
	logger   *zap.Logger

	hub         *Hub
	limiter     *middleware.RateLimiter
	unsubscribe func()
	handler     http.Handler
	startedAt   time.Time

	// HTTP server
	httpServer *http.Server
	listener   net.Listener

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer wires the HTTP surface. The audit log is subscribed so every
// recorded event is counted and pushed to the live feed.
func NewServer(cfg *config.Config, mcp mcpserver.MCPServer, auditLog *audit.Logger, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if mcp == nil {
		return nil, fmt.Errorf("mcp server cannot be nil")
	}
	if auditLog == nil {
		return nil, fmt.Errorf("audit logger cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		config:    cfg,
		mcp:       mcp,
		auditLog:  auditLog,
		logger:    logger.Named("http"),
		limiter:   middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst),
		startedAt: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	srv.hub = NewHub(ctx, srv.logger.Named("feed"))
	srv.wg.Add(1)
	go func() {
		defer srv.wg.Done()
		srv.hub.Run()
	}()

	srv.unsubscribe = auditLog.Subscribe(srv.onAuditEvent)
	srv.handler = srv.buildHandler()

	return srv, nil
}

func (s *Server) onAuditEvent(e audit.Event) {
	metrics.AuditEventsRecorded.WithLabelValues(metrics.ResultLabel(string(e.Result))).Inc()
	s.hub.Publish(e)
}

// Handler returns the root handler including CORS.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	// MCP JSON-RPC endpoint
	router.HandleFunc("/mcp", s.handleMCP).Methods(http.MethodPost)

	// Audit API
	api := router.PathPrefix("/api/v1/audit").Subrouter()
	api.Use(s.limiter.Middleware)
	api.HandleFunc("/events", s.handleAuditEvents).Methods(http.MethodGet)
	api.HandleFunc("/events", s.handleAuditClear).Methods(http.MethodDelete)
	api.HandleFunc("/errors", s.handleAuditErrors).Methods(http.MethodGet)
	api.HandleFunc("/recent", s.handleAuditRecent).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleAuditStats).Methods(http.MethodGet)
	api.HandleFunc("/metrics", s.handleAuditMetrics).Methods(http.MethodGet)
	api.HandleFunc("/export", s.handleAuditExport).Methods(http.MethodGet)

	// Live audit feed
	router.HandleFunc("/ws/audit", s.hub.ServeWS(newUpgrader(s.config.Server.AllowedOrigins))).Methods(http.MethodGet)

	router.Use(middleware.Logging(s.logger))
	router.Use(middleware.Recovery(s.logger))

	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddress())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln in the background.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		ln.Close()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP server listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("mcp", "/mcp"),
			zap.String("audit_feed", "/ws/audit"))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the server: the audit subscription is dropped, feed
// clients are disconnected and in-flight requests get shutdownTimeout to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	httpServer := s.httpServer
	s.mu.Unlock()

	s.unsubscribe()
	s.hub.Stop()
	s.limiter.Stop()

	var shutdownErr error
	if wasRunning && httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	}

	s.cancel()
	s.wg.Wait()

	s.logger.Info("HTTP server stopped")
	return shutdownErr
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
