package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/dynplug/internal/config"
	"github.com/vk/dynplug/internal/hcl"
	"github.com/vk/dynplug/internal/tomlconf"
)

// Config holds the process-level settings an App is built from. Empty log
// settings fall back to the `host` block of the configuration.
type Config struct {
	ConfigPaths []string
	// Format is "hcl", "toml" or empty to infer it from ConfigPaths.
	Format    string
	LogFormat string
	LogLevel  string
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	switch cfg.Format {
	case "", "hcl", "toml":
	default:
		return nil, fmt.Errorf("unknown config format %q: must be 'hcl' or 'toml'", cfg.Format)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, errors.New("invalid log-format: must be 'text' or 'json'")
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, errors.New("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}
	return &cfg, nil
}

// ConfigLoader returns the loader for cfg.Format. Without an explicit
// format the first file argument decides; directories and an empty path
// list default to HCL.
func (cfg *Config) ConfigLoader() config.Loader {
	format := cfg.Format
	if format == "" {
		format = "hcl"
		for _, p := range cfg.ConfigPaths {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				continue
			}
			if filepath.Ext(p) == tomlconf.Extension {
				format = "toml"
			}
			break
		}
	}
	if format == "toml" {
		return tomlconf.NewLoader()
	}
	return hcl.NewLoader()
}
