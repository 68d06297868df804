// Package config defines process configuration and its loading.
//
// Configuration is parsed once at start-up and handed to constructors by
// value; nothing reads it from globals.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// DefaultAppID is used when no application id is configured.
const DefaultAppID = "default-app-id"

// Supported store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// AppID names the shared collection partition.
	AppID string `koanf:"app_id"`
	// InitialAuthToken is a one-time custom token. The first page opened
	// without its own token signs in with it; every later page signs in
	// anonymously.
	InitialAuthToken string `koanf:"initial_auth_token"`

	AuthSecret         string `koanf:"auth_secret"`
	AuthIssuer         string `koanf:"auth_issuer"`
	AuthTokenTTLSec    int    `koanf:"auth_token_ttl_sec"`
	AuthAllowAnonymous bool   `koanf:"auth_allow_anonymous"`
	// TokenCacheSize bounds the one-time token ledger.
	TokenCacheSize int `koanf:"token_cache_size"`

	// SessionSecret signs the page cookie.
	SessionSecret string `koanf:"session_secret"`

	EventTitle string `koanf:"event_title"`
	// EventAt is the countdown target in RFC3339.
	EventAt string `koanf:"event_at"`

	StoreDriver string `koanf:"store_driver"`
	StoreDSN    string `koanf:"store_dsn"`

	// EventQueueSize bounds the fan-out queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of fan-out workers.
	WorkerCount int `koanf:"worker_count"`

	PageIdleTTLSec int `koanf:"page_idle_ttl_sec"`

	// OTelEndpoint enables trace export when non-empty, e.g. http://localhost:4318.
	OTelEndpoint string `koanf:"otel_endpoint"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		AppID:              DefaultAppID,
		AuthIssuer:         "rsvp",
		AuthTokenTTLSec:    600,
		AuthAllowAnonymous: true,
		TokenCacheSize:     10_000,
		EventTitle:         "Board Game Night",
		EventAt:            "2026-12-31T19:00:00Z",
		StoreDriver:        StoreMemory,
		EventQueueSize:     1024,
		WorkerCount:        runtime.NumCPU(),
		PageIdleTTLSec:     1800,
	}
}

// EventTime parses EventAt.
func (c *Config) EventTime() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, c.EventAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: event_at: %w", ErrInvalidConfig, err)
	}
	return t, nil
}

// AuthTokenTTL returns the custom token lifetime.
func (c *Config) AuthTokenTTL() time.Duration {
	return time.Duration(c.AuthTokenTTLSec) * time.Second
}

// PageIdleTTL returns how long an untouched page stays open.
func (c *Config) PageIdleTTL() time.Duration {
	return time.Duration(c.PageIdleTTLSec) * time.Second
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.AppID) == "" {
		c.AppID = DefaultAppID
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			return fmt.Errorf("%w: store_dsn is required for %s", ErrInvalidConfig, c.StoreDriver)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if c.AuthTokenTTLSec <= 0 {
		return fmt.Errorf("%w: auth_token_ttl_sec must be positive", ErrInvalidConfig)
	}
	if c.PageIdleTTLSec < 0 {
		return fmt.Errorf("%w: page_idle_ttl_sec must not be negative", ErrInvalidConfig)
	}
	if _, err := c.EventTime(); err != nil {
		return err
	}
	return nil
}
