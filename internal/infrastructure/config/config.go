// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/enxi-erp/reconcile-backend/internal/domain/matcher"
)

// Config represents the entire application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Matching      MatchingConfig      `yaml:"matching"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig holds database configuration.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// MatchingConfig holds the default auto-match rules. AmountTolerance is a
// decimal string so the YAML round-trips without float drift.
type MatchingConfig struct {
	DateToleranceDays int    `yaml:"date_tolerance_days"`
	AmountTolerance   string `yaml:"amount_tolerance"`
	UseReference      bool   `yaml:"use_reference"`
	UseAmount         bool   `yaml:"use_amount"`
}

// Rules converts the config section into engine rules.
func (m MatchingConfig) Rules() (matcher.Rules, error) {
	tolerance, err := decimal.NewFromString(m.AmountTolerance)
	if err != nil {
		return matcher.Rules{}, fmt.Errorf("invalid amount_tolerance %q: %w", m.AmountTolerance, err)
	}
	rules := matcher.Rules{
		DateToleranceDays: m.DateToleranceDays,
		AmountTolerance:   tolerance,
		UseReference:      m.UseReference,
		UseAmount:         m.UseAmount,
	}
	if err := rules.Validate(); err != nil {
		return matcher.Rules{}, err
	}
	return rules, nil
}

// ObservabilityConfig holds observability settings.
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${RECONCILE_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("RECONCILE_PORT", 8080),
			AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("RECONCILE_DB_PATH", "reconcile.db"),
		},
		Matching: MatchingConfig{
			DateToleranceDays: getEnvInt("RECONCILE_DATE_TOLERANCE_DAYS", 3),
			AmountTolerance:   getEnv("RECONCILE_AMOUNT_TOLERANCE", "0.01"),
			UseReference:      true,
			UseAmount:         true,
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables.
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from the given path, falls back to
// environment variables.
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return parsed
}
