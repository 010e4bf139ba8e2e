// Package config provides process-level configuration for mcpgate.
//
// Process configuration (listen address, file paths, session secret) is
// loaded once at startup. It is distinct from the runtime-mutable settings
// document, which is re-read on every request.
package config

import (
	"time"
)

// Config is the top-level process configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Settings configures the runtime-mutable settings document.
	Settings SettingsConfig `yaml:"settings" mapstructure:"settings"`

	// Backup configures settings snapshots.
	Backup BackupConfig `yaml:"backup" mapstructure:"backup"`

	// AccessLog configures the tool-call access log.
	AccessLog AccessLogConfig `yaml:"access_log" mapstructure:"access_log"`

	// Session configures signed session credentials.
	Session SessionConfig `yaml:"session" mapstructure:"session"`
}

// ServerConfig configures the HTTP server listener.
type ServerConfig struct {
	// Addr is the listen address. Default "127.0.0.1:3000".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// LogLevel controls log verbosity. Default "info".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// SettingsConfig locates the settings document.
type SettingsConfig struct {
	// Path is the settings file location. Default "mcp_settings.json".
	Path string `yaml:"path" mapstructure:"path"`
}

// BackupConfig configures settings snapshots.
type BackupConfig struct {
	// Dir is the backup directory. Default "<settings dir>/backups".
	Dir string `yaml:"dir" mapstructure:"dir"`

	// Retention is the number of backups kept. Default 10.
	Retention int `yaml:"retention" mapstructure:"retention" validate:"omitempty,min=1"`
}

// AccessLogConfig configures the access log database.
type AccessLogConfig struct {
	// Path is the SQLite database location. Default "access_log.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// SessionConfig configures signed session credentials.
type SessionConfig struct {
	// Secret signs session tokens. Required to run the server; when empty a
	// random secret is generated at startup and sessions do not survive a
	// restart.
	Secret string `yaml:"secret" mapstructure:"secret"`

	// TTL is the session lifetime as a duration string. Default "24h".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty,duration"`
}

// SetDefaults fills in default values for optional fields.
func (c *Config) SetDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:3000"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Settings.Path == "" {
		c.Settings.Path = "mcp_settings.json"
	}
	if c.Backup.Retention == 0 {
		c.Backup.Retention = 10
	}
	if c.AccessLog.Path == "" {
		c.AccessLog.Path = "access_log.db"
	}
	if c.Session.TTL == "" {
		c.Session.TTL = "24h"
	}
}

// SessionTTL parses the configured session lifetime. Call after Validate.
func (c *Config) SessionTTL() time.Duration {
	d, err := time.ParseDuration(c.Session.TTL)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}
