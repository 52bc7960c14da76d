package main

// Package main is the entry point for the couchdb-mcp server.
//
// Startup:
//  1. Load .env (optional), then config file and environment via viper
//  2. Build the zap logger (stderr plus an optional rotating file)
//  3. Create the audit log, credential generator and CouchDB client
//  4. Register the MCP tools and the audit metrics collector
//  5. Serve HTTP: /mcp, /api/v1/audit, /ws/audit, /metrics, /health
//
// SIGINT or SIGTERM stops the listener and drains in-flight requests.

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/kubilitics/couchdb-mcp/internal/audit"
	"github.com/kubilitics/couchdb-mcp/internal/config"
	"github.com/kubilitics/couchdb-mcp/internal/couchdb"
	"github.com/kubilitics/couchdb-mcp/internal/logging"
	mcpserver "github.com/kubilitics/couchdb-mcp/internal/mcp/server"
	"github.com/kubilitics/couchdb-mcp/internal/metrics"
	"github.com/kubilitics/couchdb-mcp/internal/security"
	"github.com/kubilitics/couchdb-mcp/internal/server"
)

const startupProbeTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "couchdb-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("COUCHMCP_CONFIG"), "path to a JSON or YAML config file")
	flag.Parse()

	ctx := context.Background()

	mgr, err := config.NewConfigManager(*configPath)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := mgr.Load(ctx); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := mgr.Validate(ctx); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg := mgr.Get(ctx)

	logger, closeLog, err := logging.New(logging.Config{
		Level:      cfg.Server.LogLevel,
		Format:     cfg.Server.LogFormat,
		FilePath:   cfg.Audit.LogFile,
		MaxSize:    cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
		MaxAge:     cfg.Audit.MaxAgeDays,
		Compress:   cfg.Audit.Compress,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = closeLog() }()

	auditLog, err := audit.NewLogger(&audit.Config{
		MaxEvents: cfg.Audit.MaxEvents,
		Verbosity: cfg.Server.LogLevel,
	}, logger.Named("audit"))
	if err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}

	generator, err := security.NewGenerator(security.Config{
		CredentialPrefix: cfg.Security.CredentialPrefix,
		PasswordLength:   cfg.Security.PasswordLength,
		RolePrefix:       cfg.Security.RolePrefix,
	})
	if err != nil {
		return fmt.Errorf("create credential generator: %w", err)
	}

	couch, err := couchdb.NewClient(couchdb.Config{
		URL:      cfg.CouchDB.URL,
		Username: cfg.CouchDB.AdminUsername,
		Password: cfg.CouchDB.AdminPassword,
		Timeout:  time.Duration(cfg.CouchDB.Timeout) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("create couchdb client: %w", err)
	}

	probeCtx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	if _, err := couch.ServerInfo(probeCtx); err != nil {
		logger.Warn("couchdb not reachable at startup; tool calls will fail until it is",
			zap.String("url", cfg.CouchDB.URL), zap.Error(err))
	}
	cancel()

	mcp, err := mcpserver.NewMCPServer(cfg, couch, auditLog, generator, logger)
	if err != nil {
		return fmt.Errorf("create mcp server: %w", err)
	}

	prometheus.MustRegister(metrics.NewAuditCollector(auditLog))

	srv, err := server.NewServer(cfg, mcp, auditLog, logger)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	logger.Info("couchdb-mcp started",
		zap.String("addr", cfg.ListenAddress()),
		zap.String("couchdb", cfg.CouchDB.URL),
		zap.String("cluster_id", cfg.CouchDB.ClusterID))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("shutdown signal received", zap.String("signal", sig.String()))

	if err := srv.Stop(); err != nil {
		logger.Error("error stopping server", zap.Error(err))
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
