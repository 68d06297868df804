package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read outside the RSVP_ key mapping.
const (
	EnvConfigFile       = "RSVP_CONFIG"
	EnvConnectionConfig = "RSVP_CONNECTION_CONFIG"
	envPrefix           = "RSVP_"
)

// Connection is the structured store connection blob.
type Connection struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// Load builds a Config by layering defaults, optional file, env vars and the
// connection blob.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RSVP_CONFIG is set
//  3. env (prefix RSVP_)
//  4. RSVP_CONNECTION_CONFIG for store_driver and store_dsn
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RSVP_QUEUE_SIZE -> queue_size. Underscores are kept to match the flat
	// koanf tags.
	envProvider := env.Provider(envPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, strings.ToLower(envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if blob := strings.TrimSpace(os.Getenv(EnvConnectionConfig)); blob != "" {
		conn, err := ParseConnection(blob)
		if err != nil {
			return nil, err
		}
		if conn.Driver != "" {
			_ = k.Set("store_driver", conn.Driver)
		}
		if conn.DSN != "" {
			_ = k.Set("store_dsn", conn.DSN)
		}
	}
	// The connection blob is not a config key.
	k.Delete("connection_config")
	k.Delete("config")

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseConnection decodes the connection blob. It is JSON, which the YAML
// parser accepts as-is.
func ParseConnection(blob string) (Connection, error) {
	raw, err := yaml.Parser().Unmarshal([]byte(blob))
	if err != nil {
		return Connection{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvConnectionConfig, err)
	}
	k := koanf.New(".")
	for key, val := range raw {
		_ = k.Set(key, val)
	}
	var conn Connection
	if err := k.UnmarshalWithConf("", &conn, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Connection{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvConnectionConfig, err)
	}
	return conn, nil
}
