// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	apiKey := cfg.Mollie.APIKey
//	rosterPath := cfg.Roster.Path
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Mollie        MollieConfig        `yaml:"mollie"`
	Roster        RosterConfig        `yaml:"roster"`
	Subscription  SubscriptionConfig  `yaml:"subscription"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// MollieConfig holds payment provider API configuration
type MollieConfig struct {
	APIKey string `yaml:"api_key"`
}

// RosterConfig holds the donor roster input settings
type RosterConfig struct {
	Path string `yaml:"path"`
}

// SubscriptionConfig holds the pipeline-level subscription values
type SubscriptionConfig struct {
	Description     string `yaml:"description"`
	WebhookURL      string `yaml:"webhook_url"`
	Interval        string `yaml:"interval"`
	SelectionPolicy string `yaml:"selection_policy"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${MOLLIE_API_KEY})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	return &Config{
		Mollie: MollieConfig{
			APIKey: os.Getenv("MOLLIE_API_KEY"),
		},
		Roster: RosterConfig{
			Path: os.Getenv("DONOR_ROSTER_PATH"),
		},
		Subscription: SubscriptionConfig{
			Description:     getEnv("SUBSCRIPTION_DESCRIPTION", ""),
			WebhookURL:      getEnv("SUBSCRIPTION_WEBHOOK_URL", ""),
			Interval:        getEnv("SUBSCRIPTION_INTERVAL", "1 month"),
			SelectionPolicy: getEnv("SELECTION_POLICY", "first"),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("DONORSYNC_DB_PATH", "donorsync.db"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate checks that every required value is present. A missing value is a
// fatal configuration error: nothing may touch the remote API without it.
func (c *Config) Validate() error {
	var errs []error
	if c.Mollie.APIKey == "" {
		errs = append(errs, errors.New("mollie.api_key is required (MOLLIE_API_KEY)"))
	}
	if c.Roster.Path == "" {
		errs = append(errs, errors.New("roster.path is required (DONOR_ROSTER_PATH)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
