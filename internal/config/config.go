package config

import (
	"context"
	"net"
	"strconv"
)

// Package config provides configuration management for couchdb-mcp.
//
// Configuration Sources (priority order, high to low):
//  1. Environment variables (COUCHMCP_* prefix, or the short names below)
//  2. Config file (JSON or YAML, optional)
//  3. Built-in defaults
//
// Main Configuration Sections:
//
//  1. CouchDB
//     - url: server URL (COUCHDB_URL, default http://localhost:5984)
//     - admin_username / admin_password: admin credentials (COUCHDB_ADMIN_USERNAME, COUCHDB_ADMIN_PASSWORD)
//     - cluster_id: identifier recorded on every audit event
//     - timeout: request timeout in seconds
//
//  2. Server
//     - host / port: listen address (HOST, PORT, default 0.0.0.0:3008)
//     - log_level: "debug" | "info" | "warn" | "error" (LOG_LEVEL)
//     - log_format: "json" | "console"
//     - rate_limit / rate_burst: tool calls per second
//     - allowed_origins: CORS and websocket origins
//
//  3. Security
//     - credential_prefix: username prefix (CREDENTIAL_PREFIX, default "U-")
//     - password_length: generated password length (PASSWORD_LENGTH, default 32)
//     - role_prefix: role prefix (ROLE_PREFIX, default "role-")
//
//  4. Audit
//     - max_events: in-memory capacity (AUDIT_MAX_EVENTS, default 10000)
//     - log_file: optional rotating diagnostic log file
//     - max_size_mb / max_backups / max_age_days / compress: rotation
//
// Configuration is loaded once at startup and not reloaded.
//
// Config struct contains all configuration fields
type Config struct {
	// CouchDB connection
	CouchDB struct {
		URL           string
		AdminUsername string
		AdminPassword string
		ClusterID     string
		Timeout       int
	}

	// Server configuration
	Server struct {
		Host      string
		Port      int
		LogLevel  string
		LogFormat string
		RateLimit float64
		RateBurst int
		// AllowedOrigins is a list of origins permitted for CORS and the live
		// audit feed. Use ["*"] to allow any origin (development only).
		AllowedOrigins []string
	}

	// Credential generation
	Security struct {
		CredentialPrefix string
		PasswordLength   int
		RolePrefix       string
	}

	// Audit log configuration
	Audit struct {
		MaxEvents  int
		LogFile    string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
		Compress   bool
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager. An empty path means
// no config file is read.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
	}
	return mgr, nil
}

// ListenAddress returns the host:port the HTTP server binds to.
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}
