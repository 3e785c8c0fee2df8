// Package config loads the optional YAML configuration file. Every field
// has a usable default, and a missing file is not an error, so the binary
// works with no configuration at all.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file consulted when neither the --config flag
// nor CHECKS_CONFIG points elsewhere.
const DefaultPath = "/etc/checks/checks.yaml"

// Config holds the tunables shared by every check.
type Config struct {
	// CacheDir is where discovery cache entries live.
	CacheDir string `yaml:"cache_dir"`
	// CacheBackend selects "file" or "sqlite".
	CacheBackend string `yaml:"cache_backend"`
	// DefaultTTLSeconds applies when a discovery operation gives no --ttl.
	DefaultTTLSeconds int `yaml:"default_ttl_seconds"`
	// SearchPath overrides the directories searched for control tools.
	SearchPath []string `yaml:"search_path"`
	// TimeoutSeconds bounds a single control tool invocation.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		CacheDir:       filepath.Join(os.TempDir(), "checks"),
		CacheBackend:   "file",
		TimeoutSeconds: 10,
	}
}

// Load reads the config at path, or the environment/default location when
// path is empty. A nonexistent file yields the defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv("CHECKS_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// An explicit empty cache_backend means the default, not an error.
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "file"
	}
	if cfg.CacheBackend != "file" && cfg.CacheBackend != "sqlite" {
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
	return cfg, nil
}
