package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Port        int    `yaml:"port"`
	MetricsPort int    `yaml:"metrics_port"`
	LogLevel    string `yaml:"log_level"`

	Database struct {
		Dialect string `yaml:"dialect"` // "sqlite3" or "postgres"
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Stopwatch struct {
		// Strict rejects StopStep on a never-started step instead of
		// falling back to a synthetic zero-length timing window.
		Strict bool `yaml:"strict"`
	} `yaml:"stopwatch"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{
		Port:        8080,
		MetricsPort: 9090,
		LogLevel:    "info",
	}
	cfg.Database.Dialect = "sqlite3"
	cfg.Database.DSN = "halwakitchen.db"
	cfg.Auth.JWTSecret = os.Getenv("HALWA_JWT_SECRET")
	return cfg
}

// Load reads a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = os.Getenv("HALWA_JWT_SECRET")
	}
	return cfg, nil
}
