// config.go - Configuration management for the ledger daemon
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents the daemon configuration
type Config struct {
	// Network
	ListenAddr string `json:"listen_addr"`

	// File paths
	LedgerPath string `json:"ledger_path"`
	KeyDir     string `json:"key_dir"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Rate limiting (per identity)
	RateLimitTokens        int `json:"rate_limit_tokens"`
	RateLimitRefill        int `json:"rate_limit_refill"`
	RateLimitPeriodSeconds int `json:"rate_limit_period_seconds"`

	// Performance
	TimeoutSeconds int `json:"timeout_seconds"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:             ":8480",
		LedgerPath:             "ledger.json",
		KeyDir:                 "keys",
		LogLevel:               "info",
		LogFile:                "",
		RateLimitTokens:        20,
		RateLimitRefill:        5,
		RateLimitPeriodSeconds: 1,
		TimeoutSeconds:         30,
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer file.Close()

		cfg := DefaultConfig()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	// No config file: write the defaults so operators have a starting point
	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		return nil, fmt.Errorf("failed to save default config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a JSON file
func (c *Config) Save(configPath string) error {
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

// Validate checks the configuration for invalid values
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.LedgerPath == "" {
		return fmt.Errorf("ledger_path must not be empty")
	}
	if c.RateLimitTokens <= 0 || c.RateLimitRefill <= 0 || c.RateLimitPeriodSeconds <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	return nil
}
