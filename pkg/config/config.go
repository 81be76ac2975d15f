// Package config provides the configuration for the tiendasync agent.
//
// The configuration is organized into logical sections:
//   - Source: local database connection parameters
//   - API: remote endpoint and transport settings
//   - Sync: table selection, scheduling and session lifetime
//   - Logging: log level and encoding
package config

import (
	"time"

	"github.com/tiendalink/tiendasync/pkg/api"
	"github.com/tiendalink/tiendasync/pkg/errors"
	"github.com/tiendalink/tiendasync/pkg/store/core"
	syncpkg "github.com/tiendalink/tiendasync/pkg/sync"
)

// Config is the root configuration structure.
type Config struct {
	// Source holds the local database connection parameters
	Source core.Params `yaml:"source" json:"source"`

	// API configures the remote endpoint transport
	API api.Config `yaml:"api" json:"api"`

	// Sync controls table selection and scheduling
	Sync SyncConfig `yaml:"sync" json:"sync"`

	// Logging controls log output
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SyncConfig controls what gets synced and when.
type SyncConfig struct {
	// Tables selects the tables to sync; empty means every table in
	// the dependency order
	Tables []string `yaml:"tables" json:"tables"`
	// Interval enables the timer trigger when greater than zero
	Interval time.Duration `yaml:"interval" json:"interval"`
	// TokenTTL is the assumed remote token lifetime
	TokenTTL time.Duration `yaml:"token_ttl" json:"token_ttl"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		API: *api.DefaultConfig(),
		Sync: SyncConfig{
			Tables:   append([]string(nil), syncpkg.DependencyOrder...),
			TokenTTL: time.Hour,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for required fields. The source
// section may be empty: a file source carries only a database path, and
// a fully empty source falls back to the settings saved by the last
// successful run.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New(errors.ErrorTypeConfig, "api.base_url is required")
	}
	if c.Sync.TokenTTL <= 0 {
		return errors.New(errors.ErrorTypeConfig, "sync.token_ttl must be positive")
	}
	if c.Sync.Interval < 0 {
		return errors.New(errors.ErrorTypeConfig, "sync.interval cannot be negative")
	}
	return nil
}
