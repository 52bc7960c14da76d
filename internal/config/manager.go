package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// shortEnvNames maps config keys to the unprefixed environment variables
// operators already use for CouchDB tooling. The COUCHMCP_* name wins when
// both are set.
var shortEnvNames = map[string]string{
	"couchdb.url":                "COUCHDB_URL",
	"couchdb.admin_username":     "COUCHDB_ADMIN_USERNAME",
	"couchdb.admin_password":     "COUCHDB_ADMIN_PASSWORD",
	"server.host":                "HOST",
	"server.port":                "PORT",
	"server.log_level":           "LOG_LEVEL",
	"security.credential_prefix": "CREDENTIAL_PREFIX",
	"security.password_length":   "PASSWORD_LENGTH",
	"security.role_prefix":       "ROLE_PREFIX",
	"audit.max_events":           "AUDIT_MAX_EVENTS",
}

const envPrefix = "COUCHMCP"

// viperConfigManager implements ConfigManager using Viper.
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
}

// Load loads configuration from all sources.
func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()

	m.viper.SetEnvPrefix(envPrefix)
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.bindEnv(); err != nil {
		return err
	}

	if m.configPath != "" {
		m.viper.SetConfigFile(m.configPath)
		m.viper.SetConfigType(configType(m.configPath))

		if err := m.viper.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	return nil
}

// Get returns the current configuration.
func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

// Validate validates configuration is correct and complete.
func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var errMsgs []string
		for _, err := range errs {
			errMsgs = append(errMsgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errMsgs, "\n  - "))
	}
	return nil
}

func configType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// bindEnv binds each key to its prefixed name first and its short name second.
func (m *viperConfigManager) bindEnv() error {
	for key, short := range shortEnvNames {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := m.viper.BindEnv(key, prefixed, short); err != nil {
			return fmt.Errorf("error binding env for %s: %w", key, err)
		}
	}
	return nil
}

// setDefaults sets default values in viper.
func (m *viperConfigManager) setDefaults() {
	defaults := DefaultConfig()

	// CouchDB defaults
	m.viper.SetDefault("couchdb.url", defaults.CouchDB.URL)
	m.viper.SetDefault("couchdb.admin_username", defaults.CouchDB.AdminUsername)
	m.viper.SetDefault("couchdb.admin_password", defaults.CouchDB.AdminPassword)
	m.viper.SetDefault("couchdb.cluster_id", defaults.CouchDB.ClusterID)
	m.viper.SetDefault("couchdb.timeout", defaults.CouchDB.Timeout)

	// Server defaults
	m.viper.SetDefault("server.host", defaults.Server.Host)
	m.viper.SetDefault("server.port", defaults.Server.Port)
	m.viper.SetDefault("server.log_level", defaults.Server.LogLevel)
	m.viper.SetDefault("server.log_format", defaults.Server.LogFormat)
	m.viper.SetDefault("server.rate_limit", defaults.Server.RateLimit)
	m.viper.SetDefault("server.rate_burst", defaults.Server.RateBurst)
	m.viper.SetDefault("server.allowed_origins", defaults.Server.AllowedOrigins)

	// Security defaults
	m.viper.SetDefault("security.credential_prefix", defaults.Security.CredentialPrefix)
	m.viper.SetDefault("security.password_length", defaults.Security.PasswordLength)
	m.viper.SetDefault("security.role_prefix", defaults.Security.RolePrefix)

	// Audit defaults
	m.viper.SetDefault("audit.max_events", defaults.Audit.MaxEvents)
	m.viper.SetDefault("audit.log_file", defaults.Audit.LogFile)
	m.viper.SetDefault("audit.max_size_mb", defaults.Audit.MaxSizeMB)
	m.viper.SetDefault("audit.max_backups", defaults.Audit.MaxBackups)
	m.viper.SetDefault("audit.max_age_days", defaults.Audit.MaxAgeDays)
	m.viper.SetDefault("audit.compress", defaults.Audit.Compress)
}

// unmarshalConfig unmarshals viper config into Config struct.
func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	// CouchDB
	cfg.CouchDB.URL = strings.TrimRight(m.viper.GetString("couchdb.url"), "/")
	cfg.CouchDB.AdminUsername = m.viper.GetString("couchdb.admin_username")
	cfg.CouchDB.AdminPassword = m.viper.GetString("couchdb.admin_password")
	cfg.CouchDB.ClusterID = m.viper.GetString("couchdb.cluster_id")
	cfg.CouchDB.Timeout = m.viper.GetInt("couchdb.timeout")

	// Server
	cfg.Server.Host = m.viper.GetString("server.host")
	cfg.Server.Port = m.viper.GetInt("server.port")
	cfg.Server.LogLevel = strings.ToLower(m.viper.GetString("server.log_level"))
	cfg.Server.LogFormat = strings.ToLower(m.viper.GetString("server.log_format"))
	cfg.Server.RateLimit = m.viper.GetFloat64("server.rate_limit")
	cfg.Server.RateBurst = m.viper.GetInt("server.rate_burst")
	cfg.Server.AllowedOrigins = splitList(m.viper.GetStringSlice("server.allowed_origins"))

	// Security
	cfg.Security.CredentialPrefix = m.viper.GetString("security.credential_prefix")
	cfg.Security.PasswordLength = m.viper.GetInt("security.password_length")
	cfg.Security.RolePrefix = m.viper.GetString("security.role_prefix")

	// Audit
	cfg.Audit.MaxEvents = m.viper.GetInt("audit.max_events")
	cfg.Audit.LogFile = m.viper.GetString("audit.log_file")
	cfg.Audit.MaxSizeMB = m.viper.GetInt("audit.max_size_mb")
	cfg.Audit.MaxBackups = m.viper.GetInt("audit.max_backups")
	cfg.Audit.MaxAgeDays = m.viper.GetInt("audit.max_age_days")
	cfg.Audit.Compress = m.viper.GetBool("audit.compress")

	m.config = cfg
	return nil
}

// splitList accepts both list values and a single comma separated string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
