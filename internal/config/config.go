package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Guided    GuidedConfig    `yaml:"guided"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

type TailscaleConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Hostname string `yaml:"hostname"`
	StateDir string `yaml:"state_dir"`
}

// GuidedConfig tunes the guided-workout client.
type GuidedConfig struct {
	WeightStep       float64       `yaml:"weight_step"`
	StatusClearDelay time.Duration `yaml:"status_clear_delay"`
	DefaultBandLabel string        `yaml:"default_band_label"`
}

// Defaults for GuidedConfig.
const (
	DefaultWeightStep       = 2.5
	DefaultStatusClearDelay = 2 * time.Second
	DefaultBandLabel        = "Medium"
)

// DefaultGuided returns the guided settings used when none are configured.
func DefaultGuided() GuidedConfig {
	return GuidedConfig{
		WeightStep:       DefaultWeightStep,
		StatusClearDelay: DefaultStatusClearDelay,
		DefaultBandLabel: DefaultBandLabel,
	}
}

// DSN returns a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslmode := d.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, sslmode)
}

// Load reads config from a YAML file, then applies environment variable overrides.
// Env vars use the prefix REPGUIDE_ and underscore-separated paths:
//
//	REPGUIDE_SERVER_HOST, REPGUIDE_SERVER_PORT,
//	REPGUIDE_DB_HOST, REPGUIDE_DB_PORT, REPGUIDE_DB_NAME,
//	REPGUIDE_DB_USER, REPGUIDE_DB_PASSWORD, REPGUIDE_DB_SSLMODE,
//	REPGUIDE_AUTH_API_KEY,
//	REPGUIDE_TAILSCALE_ENABLED, REPGUIDE_TAILSCALE_HOSTNAME, REPGUIDE_TAILSCALE_STATE_DIR,
//	REPGUIDE_GUIDED_WEIGHT_STEP, REPGUIDE_GUIDED_STATUS_CLEAR_DELAY,
//	REPGUIDE_GUIDED_DEFAULT_BAND_LABEL
func Load(path string) (*Config, error) {
	cfg := &Config{Guided: DefaultGuided()}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("REPGUIDE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("REPGUIDE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("REPGUIDE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("REPGUIDE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("REPGUIDE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REPGUIDE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("REPGUIDE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("REPGUIDE_DB_SSLMODE"); v != "" {
		cfg.Database.SSLMode = v
	}
	if v := os.Getenv("REPGUIDE_AUTH_API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := os.Getenv("REPGUIDE_TAILSCALE_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tailscale.Enabled = b
		}
	}
	if v := os.Getenv("REPGUIDE_TAILSCALE_HOSTNAME"); v != "" {
		cfg.Tailscale.Hostname = v
	}
	if v := os.Getenv("REPGUIDE_TAILSCALE_STATE_DIR"); v != "" {
		cfg.Tailscale.StateDir = v
	}
	if v := os.Getenv("REPGUIDE_GUIDED_WEIGHT_STEP"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Guided.WeightStep = f
		}
	}
	if v := os.Getenv("REPGUIDE_GUIDED_STATUS_CLEAR_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Guided.StatusClearDelay = d
		}
	}
	if v := os.Getenv("REPGUIDE_GUIDED_DEFAULT_BAND_LABEL"); v != "" {
		cfg.Guided.DefaultBandLabel = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port == 0 {
		return fmt.Errorf("database.port is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("database.name is required")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key is required")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}
	if c.Guided.WeightStep <= 0 {
		return fmt.Errorf("guided.weight_step must be positive")
	}
	if c.Guided.StatusClearDelay < 0 {
		return fmt.Errorf("guided.status_clear_delay must not be negative")
	}
	return nil
}
