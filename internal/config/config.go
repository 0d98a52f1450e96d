// Package config loads the server configuration from config/config.yaml
// with environment variable overrides for deployment settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/blockfix/backend/pkg/logger"
)

// Config is the root configuration for the complaint tracker server.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Logging  logger.LoggingConfig `yaml:"logging"`
	Funding  FundingConfig        `yaml:"funding"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// RateLimit is the sustained request rate allowed per second.
	// RateBurst is the burst size on top of it. Zero disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

// DatabaseConfig holds the storage backend settings. An empty DSN
// selects the in-memory store.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds"`
}

// FundingConfig holds the fund pool and award parameters.
type FundingConfig struct {
	// VoteThreshold is the community vote count at which a
	// non-sensitive complaint is verified.
	VoteThreshold int `yaml:"vote_threshold"`
	// DefaultAward is paid out when the admin has not set an amount.
	DefaultAward float64 `yaml:"default_award"`
	// InitialPool seeds the fund pool on first startup.
	InitialPool float64 `yaml:"initial_pool"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      5000,
			RateLimit: 50,
			RateBurst: 100,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 300,
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Funding: FundingConfig{
			VoteThreshold: 3,
			DefaultAward:  1000,
			InitialPool:   20000,
		},
	}
}

// Load loads the configuration from config/config.yaml, or from the
// path in BLOCKFIX_CONFIG when set. A missing file yields defaults.
func Load() (*Config, error) {
	path := os.Getenv("BLOCKFIX_CONFIG")
	if path == "" {
		path = filepath.Join("config", "config.yaml")
	}
	cfg, err := LoadFromPath(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = Default()
		} else {
			return nil, err
		}
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromPath loads the configuration from a specific file. Fields
// absent from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port %d out of range", c.Server.Port)
	}
	if c.Funding.VoteThreshold < 1 {
		return fmt.Errorf("funding: vote_threshold must be at least 1, got %d", c.Funding.VoteThreshold)
	}
	if c.Funding.DefaultAward <= 0 {
		return fmt.Errorf("funding: default_award must be positive, got %g", c.Funding.DefaultAward)
	}
	if c.Funding.InitialPool < 0 {
		return fmt.Errorf("funding: initial_pool must not be negative, got %g", c.Funding.InitialPool)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
