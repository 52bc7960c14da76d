package config

import (
	"fmt"
	"net/url"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 256
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// CouchDB
	if c.CouchDB.URL == "" {
		add("couchdb.url", "couchdb url is required")
	} else if u, err := url.Parse(c.CouchDB.URL); err != nil {
		add("couchdb.url", "invalid url: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("couchdb.url", "scheme must be http or https, got %q", u.Scheme)
	} else if u.Host == "" {
		add("couchdb.url", "url host cannot be empty")
	}

	if c.CouchDB.AdminUsername == "" {
		add("couchdb.admin_username", "admin username is required")
	}
	if c.CouchDB.ClusterID == "" {
		add("couchdb.cluster_id", "cluster id is required")
	}
	if c.CouchDB.Timeout < 1 {
		add("couchdb.timeout", "timeout must be at least 1 second, got %d", c.CouchDB.Timeout)
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "port must be between 1 and 65535, got %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Server.LogLevel] {
		add("server.log_level", "invalid log level '%s', must be one of: debug, info, warn, error", c.Server.LogLevel)
	}

	if c.Server.LogFormat != "json" && c.Server.LogFormat != "console" {
		add("server.log_format", "invalid log format '%s', must be one of: json, console", c.Server.LogFormat)
	}

	if c.Server.RateLimit <= 0 {
		add("server.rate_limit", "rate limit must be positive, got %v", c.Server.RateLimit)
	}
	if c.Server.RateBurst < 1 {
		add("server.rate_burst", "rate burst must be at least 1, got %d", c.Server.RateBurst)
	}

	// Security
	if c.Security.CredentialPrefix == "" {
		add("security.credential_prefix", "credential prefix cannot be empty")
	}
	if c.Security.RolePrefix == "" {
		add("security.role_prefix", "role prefix cannot be empty")
	}
	if c.Security.PasswordLength < minPasswordLength || c.Security.PasswordLength > maxPasswordLength {
		add("security.password_length", "password length must be between %d and %d, got %d",
			minPasswordLength, maxPasswordLength, c.Security.PasswordLength)
	}

	// Audit
	if c.Audit.MaxEvents < 1 {
		add("audit.max_events", "max events must be at least 1, got %d", c.Audit.MaxEvents)
	}
	if c.Audit.LogFile != "" {
		if c.Audit.MaxSizeMB < 1 {
			add("audit.max_size_mb", "max size must be at least 1 MB when log_file is set, got %d", c.Audit.MaxSizeMB)
		}
		if c.Audit.MaxBackups < 0 {
			add("audit.max_backups", "max backups cannot be negative, got %d", c.Audit.MaxBackups)
		}
		if c.Audit.MaxAgeDays < 0 {
			add("audit.max_age_days", "max age cannot be negative, got %d", c.Audit.MaxAgeDays)
		}
	}

	return errs
}
