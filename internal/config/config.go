// Package config loads the application configuration from an optional YAML
// file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file looked up in the working directory
// when no --config flag is given.
const DefaultFileName = "nexuscore.yaml"

// Duration wraps time.Duration with YAML string parsing ("5m", "30s").
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the application configuration.
type Config struct {
	Server struct {
		Addr       string `yaml:"addr"`
		AdminToken string `yaml:"admin_token"`
	} `yaml:"server"`

	Plugins struct {
		Root        string `yaml:"root"`
		UploadsRoot string `yaml:"uploads_root"`
		DataDir     string `yaml:"data_dir"`
		Watch       bool   `yaml:"watch"`
	} `yaml:"plugins"`

	Health struct {
		Interval       Duration `yaml:"interval"`
		ErrorThreshold int64    `yaml:"error_threshold"`
	} `yaml:"health"`

	Debug bool `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Plugins.Root = "plugins"
	cfg.Plugins.UploadsRoot = "uploads"
	cfg.Plugins.DataDir = "data"
	cfg.Plugins.Watch = true
	cfg.Health.Interval = Duration(5 * time.Minute)
	cfg.Health.ErrorThreshold = 10
	return cfg
}

// Load reads the config file at path (or DefaultFileName when path is
// empty), falling back to defaults when the file is absent, then applies
// NEXUSCORE_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
		// Defaults only.
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("NEXUSCORE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("NEXUSCORE_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("NEXUSCORE_PLUGINS_ROOT"); v != "" {
		cfg.Plugins.Root = v
	}
	if v := os.Getenv("NEXUSCORE_UPLOADS_ROOT"); v != "" {
		cfg.Plugins.UploadsRoot = v
	}
	if v := os.Getenv("NEXUSCORE_DATA_DIR"); v != "" {
		cfg.Plugins.DataDir = v
	}
	if v := os.Getenv("NEXUSCORE_HEALTH_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.Health.Interval = Duration(parsed)
		}
	}
	if v := os.Getenv("NEXUSCORE_DEBUG"); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = parsed
		}
	}
}
