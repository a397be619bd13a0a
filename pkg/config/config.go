package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds runtime configuration for objectsim.
//
// YAML example:
//   address: ":8080"
//   dataDir: "./data"
//   limits:
//     maxValueBytes: 4999999999
//   tracing:
//     enabled: false
//
// Environment overrides:
//   OBJECTSIM_ADDR overrides Address when set.
//   OBJECTSIM_DATA_DIR overrides DataDir.
//   OBJECTSIM_LIMIT_MAX_VALUE_BYTES overrides Limits.MaxValueBytes.
//   OBJECTSIM_TRACING_* override the tracing block (ENABLED, ENDPOINT,
//     PROTOCOL, SAMPLE, SERVICE, KEY_HASH).
//   OBJECTSIM_CONFIG path to YAML config file; if empty, loader tries
//     ./config.yaml then defaults.
//
// Backward-compatible defaults should be maintained across versions.
// Avoid silently changing the default data directory.
type Config struct {
	Address string        `yaml:"address"`
	DataDir string        `yaml:"dataDir"`
	Limits  LimitsConfig  `yaml:"limits"`
	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Endpoint       string  `yaml:"endpoint"`                 // OTLP collector endpoint (host:port or URL)
	Protocol       string  `yaml:"protocol,omitempty"`       // "grpc" (default) or "http"
	SampleRatio    float64 `yaml:"sampleRatio,omitempty"`    // 0.0 - 1.0
	ServiceName    string  `yaml:"serviceName,omitempty"`    // override service.name; default "objectsim"
	KeyHashEnabled bool    `yaml:"keyHashEnabled,omitempty"` // when true, emit objectsim.key_hash on object spans
}

// LimitsConfig controls gateway size limits (bytes).
// Zero or missing values fall back to built-in defaults.
type LimitsConfig struct {
	MaxValueBytes int64 `yaml:"maxValueBytes"` // e.g., 4999999999
}

// Default returns a Config with safe, local defaults.
func Default() Config {
	return Config{
		Address: ":8080",
		DataDir: "./data",
		Tracing: TracingConfig{
			Enabled:        false,
			Protocol:       "grpc",
			SampleRatio:    0.0,
			ServiceName:    "objectsim",
			KeyHashEnabled: false,
		},
	}
}

// Load reads configuration from path. If path is empty, it attempts to read
// ./config.yaml; if not found, returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		// Try local config.yaml
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path == "" {
		cfg := Default()
		return applyEnvOverrides(cfg), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := Default()
			return applyEnvOverrides(cfg), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg = applyEnvOverrides(cfg)
	return cfg, nil
}

// EnsureDirs creates the data directory with 0700 if it doesn't exist.
func EnsureDirs(cfg Config) error {
	if cfg.DataDir == "" {
		return nil
	}
	abs, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("abs path %q: %w", cfg.DataDir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return fmt.Errorf("mkdir %q: %w", abs, err)
	}
	return nil
}

func applyEnvOverrides(cfg Config) Config {
	if v := os.Getenv("OBJECTSIM_ADDR"); v != "" {
		cfg.Address = v
	}
	if v := os.Getenv("OBJECTSIM_DATA_DIR"); v != "" {
		cfg.DataDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("OBJECTSIM_LIMIT_MAX_VALUE_BYTES"); v != "" {
		if x, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && x > 0 {
			cfg.Limits.MaxValueBytes = x
		}
	}
	// Tracing overrides
	if v := os.Getenv("OBJECTSIM_TRACING_ENABLED"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Tracing.Enabled = b
		}
	}
	if v := os.Getenv("OBJECTSIM_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("OBJECTSIM_TRACING_PROTOCOL"); v != "" {
		p := strings.ToLower(strings.TrimSpace(v))
		if p == "grpc" || p == "http" {
			cfg.Tracing.Protocol = p
		}
	}
	if v := os.Getenv("OBJECTSIM_TRACING_SAMPLE"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			if f < 0 {
				f = 0
			}
			if f > 1 {
				f = 1
			}
			cfg.Tracing.SampleRatio = f
		}
	}
	if v := os.Getenv("OBJECTSIM_TRACING_SERVICE"); v != "" {
		cfg.Tracing.ServiceName = strings.TrimSpace(v)
	}
	if v := os.Getenv("OBJECTSIM_TRACING_KEY_HASH"); v != "" {
		if b, ok := parseBool(v); ok {
			cfg.Tracing.KeyHashEnabled = b
		}
	}
	return cfg
}

// parseBool accepts the usual truthy/falsy spellings; ok is false for
// anything else so an invalid value keeps the existing setting.
func parseBool(v string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	default:
		return false, false
	}
}
