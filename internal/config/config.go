// Package config manages mdrd daemon configuration using koanf/v2.
//
// Supports YAML files, environment variables, and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete mdrd configuration.
type Config struct {
	Bus     BusConfig     `koanf:"bus"`
	Metrics MetricsConfig `koanf:"metrics"`
	Log     LogConfig     `koanf:"log"`
	Session SessionConfig `koanf:"session"`
}

// BusConfig holds the D-Bus transport configuration (spec.md §6).
type BusConfig struct {
	// System selects the system bus when true, the session bus otherwise.
	// Production deployments (bluetoothd runs on the system bus) want true.
	System bool `koanf:"system"`

	// Name is the well-known bus name the daemon requests, e.g. "org.mdr".
	Name string `koanf:"name"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address for the metrics endpoint (e.g., ":9101").
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint (e.g., "/metrics").
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// SessionConfig holds operator-tunable timing knobs layered on top of the
// per-device session's fixed protocol constants (spec.md §4.2-§4.3). The
// dispatcher's own request timeout and the link's own retransmit ladder stay
// protocol constants in package mdr; the values here only bound how long the
// daemon waits on a new device's handshake and on shutdown drain.
type SessionConfig struct {
	// HandshakeTimeout bounds INIT/GET_PROTOCOL_INFO/GET_CAPABILITY_INFO plus
	// every advertised surface's initial seed, end to end.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`

	// DrainTimeout bounds how long the daemon waits for live sessions to
	// close during graceful shutdown before proceeding anyway.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			System: true,
			Name:   "org.mdr",
		},
		Metrics: MetricsConfig{
			Addr: ":9101",
			Path: "/metrics",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Session: SessionConfig{
			HandshakeTimeout: 15 * time.Second,
			DrainTimeout:     5 * time.Second,
		},
	}
}

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for mdrd configuration.
// Variables are named MDRD_<section>_<key>, e.g., MDRD_BUS_NAME.
const envPrefix = "MDRD_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (MDRD_ prefix), and merges on top of DefaultConfig().
// Missing fields inherit defaults.
//
// Environment variable mapping:
//
//	MDRD_BUS_SYSTEM                -> bus.system
//	MDRD_BUS_NAME                  -> bus.name
//	MDRD_METRICS_ADDR              -> metrics.addr
//	MDRD_METRICS_PATH              -> metrics.path
//	MDRD_LOG_LEVEL                 -> log.level
//	MDRD_LOG_FORMAT                -> log.format
//	MDRD_SESSION_HANDSHAKE_TIMEOUT -> session.handshake_timeout
//	MDRD_SESSION_DRAIN_TIMEOUT     -> session.drain_timeout
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Load defaults first.
	defaults := DefaultConfig()
	if err := loadDefaults(k, defaults); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	// Load YAML file on top of defaults.
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}

	// Load environment variable overrides on top of YAML.
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config from %s: %w", path, err)
	}

	return cfg, nil
}

// envKeyMapper transforms MDRD_BUS_NAME -> bus.name. Only the first
// underscore separates section from key, so MDRD_SESSION_DRAIN_TIMEOUT
// maps to session.drain_timeout.
func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	s = strings.ToLower(s)
	return strings.Replace(s, "_", ".", 1)
}

// loadDefaults marshals the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, defaults *Config) error {
	defaultMap := map[string]any{
		"bus.system":                defaults.Bus.System,
		"bus.name":                  defaults.Bus.Name,
		"metrics.addr":              defaults.Metrics.Addr,
		"metrics.path":              defaults.Metrics.Path,
		"log.level":                 defaults.Log.Level,
		"log.format":                defaults.Log.Format,
		"session.handshake_timeout": defaults.Session.HandshakeTimeout.String(),
		"session.drain_timeout":     defaults.Session.DrainTimeout.String(),
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyBusName indicates the bus well-known name is empty.
	ErrEmptyBusName = errors.New("bus.name must not be empty")

	// ErrInvalidHandshakeTimeout indicates the handshake timeout is non-positive.
	ErrInvalidHandshakeTimeout = errors.New("session.handshake_timeout must be > 0")

	// ErrInvalidDrainTimeout indicates the drain timeout is non-positive.
	ErrInvalidDrainTimeout = errors.New("session.drain_timeout must be > 0")
)

// Validate checks a Config for internal consistency.
func Validate(cfg *Config) error {
	if cfg.Bus.Name == "" {
		return ErrEmptyBusName
	}
	if cfg.Session.HandshakeTimeout <= 0 {
		return ErrInvalidHandshakeTimeout
	}
	if cfg.Session.DrainTimeout <= 0 {
		return ErrInvalidDrainTimeout
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
//
// Recognized values: "debug", "info", "warn", "error" (case-insensitive).
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
