package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading from YAML files and environment variables
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		v: viper.New(),
	}
}

// Load loads configuration from files and environment variables
// YAML files take precedence, then ENV variables override
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName("config")
	l.v.SetConfigType("yaml")

	// Add multiple search paths (in order of priority)
	l.v.AddConfigPath("/etc/infraweave")   // System-wide config
	l.v.AddConfigPath("$HOME/.infraweave") // User config
	l.v.AddConfigPath(".")                 // Current directory

	l.v.SetEnvPrefix("INFRAWEAVE")
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	l.setDefaults()

	// Config file not found is OK - we'll use defaults and ENV
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Log defaults
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "json")

	// Database defaults
	l.v.SetDefault("db.path", "./data/infraweave.db")
	l.v.SetDefault("db.max_open_conns", 25)
	l.v.SetDefault("db.max_idle_conns", 5)
	l.v.SetDefault("db.conn_max_lifetime", 300) // 5 minutes

	// Service defaults
	l.v.SetDefault("service.shutdown_timeout", "30s")

	// Processor defaults
	l.v.SetDefault("processor.strategy", "sequential")
	l.v.SetDefault("processor.workers", 4)
	l.v.SetDefault("processor.poll_delay", "10s")
	l.v.SetDefault("processor.default_create_timeout", "10m")

	// Hetzner defaults
	l.v.SetDefault("hetzner.enabled", false)
	l.v.SetDefault("hetzner.server_type", "cx22")
	l.v.SetDefault("hetzner.image", "ubuntu-24.04")
	l.v.SetDefault("hetzner.location", "nbg1")
}

// LoadWithPath loads configuration from a specific file path
func LoadWithPath(configPath string) (*Config, error) {
	loader := NewLoader()
	loader.v.SetConfigFile(configPath)

	loader.v.SetEnvPrefix("INFRAWEAVE")
	loader.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	loader.v.AutomaticEnv()

	loader.setDefaults()

	if err := loader.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := loader.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration only from environment variables
func LoadFromEnv() (*Config, error) {
	loader := NewLoader()
	loader.setDefaults()

	loader.v.SetEnvPrefix("INFRAWEAVE")
	loader.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	loader.v.AutomaticEnv()

	var cfg Config
	if err := loader.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
