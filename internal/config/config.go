// Package config loads the standalone binary's YAML configuration via
// viper, grounded on VertexToEdge-synology-file-cache's config.go:
// SetDefault per key, ReadInConfig, Unmarshal into a mapstructure-tagged
// tree, then Validate.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the standalone rangeproxy-server's full configuration tree.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Origin  OriginConfig  `mapstructure:"origin"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the loopback HybridServer and storage layout.
type ServerConfig struct {
	Port             int    `mapstructure:"port"`
	StorageDir       string `mapstructure:"storage_dir"`
	CollectionsDir   string `mapstructure:"collections_dir"`
	SaveDebounce     string `mapstructure:"save_debounce"`
}

// OriginConfig controls the default OriginSource construction.
type OriginConfig struct {
	UserAgent string `mapstructure:"user_agent"`
	ProxyURL  string `mapstructure:"proxy_url"`
	ProxyUser string `mapstructure:"proxy_user"`
	ProxyPass string `mapstructure:"proxy_pass"`
}

// LoggingConfig controls the zap logger built in internal/logging.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configPath (YAML) with defaults applied for every field,
// then validates the result.
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.storage_dir", "./storage")
	viper.SetDefault("server.collections_dir", "./collections")
	viper.SetDefault("server.save_debounce", "750ms")

	viper.SetDefault("origin.user_agent", "rangeproxy/1.0")
	viper.SetDefault("origin.proxy_url", "")
	viper.SetDefault("origin.proxy_user", "")
	viper.SetDefault("origin.proxy_pass", "")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size_mb", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 28)

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", configPath, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks the fields Load doesn't already default-fill safely.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.StorageDir == "" {
		return fmt.Errorf("server.storage_dir is required")
	}
	if _, err := time.ParseDuration(c.Server.SaveDebounce); err != nil {
		return fmt.Errorf("invalid server.save_debounce: %w", err)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format: %s", c.Logging.Format)
	}
	return nil
}

// GetSaveDebounce returns server.save_debounce as a time.Duration.
func (c *ServerConfig) GetSaveDebounce() time.Duration {
	d, err := time.ParseDuration(c.SaveDebounce)
	if err != nil || d <= 0 {
		return 750 * time.Millisecond
	}
	return d
}
