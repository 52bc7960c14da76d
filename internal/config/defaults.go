package config

// DefaultConfig returns a configuration with all default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	// CouchDB defaults
	cfg.CouchDB.URL = "http://localhost:5984"
	cfg.CouchDB.AdminUsername = "admin"
	cfg.CouchDB.AdminPassword = "password"
	cfg.CouchDB.ClusterID = "default"
	cfg.CouchDB.Timeout = 30

	// Server defaults
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 3008
	cfg.Server.LogLevel = "info"
	cfg.Server.LogFormat = "json"
	cfg.Server.RateLimit = 50
	cfg.Server.RateBurst = 100
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

	// Security defaults
	cfg.Security.CredentialPrefix = "U-"
	cfg.Security.PasswordLength = 32
	cfg.Security.RolePrefix = "role-"

	// Audit defaults
	cfg.Audit.MaxEvents = 10000
	cfg.Audit.LogFile = ""
	cfg.Audit.MaxSizeMB = 100 // megabytes
	cfg.Audit.MaxBackups = 10
	cfg.Audit.MaxAgeDays = 30
	cfg.Audit.Compress = true

	return cfg
}
