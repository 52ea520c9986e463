package config

import (
	"fmt"
	"time"
)

// Config defines the configuration for the orchestrator service.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Processor   ProcessorConfig   `mapstructure:"processor"`
	Definitions DefinitionsConfig `mapstructure:"definitions"`
	Hetzner     HetznerConfig     `mapstructure:"hetzner"`
}

// ServiceConfig defines service-level configuration options.
type ServiceConfig struct {
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig defines the logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DBConfig defines the user data store configuration.
type DBConfig struct {
	Path            string `mapstructure:"path"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // seconds
}

// ProcessorConfig defines the execution core configuration.
type ProcessorConfig struct {
	// Strategy selects batch execution: "sequential" or "parallel".
	Strategy string `mapstructure:"strategy"`
	Workers  int    `mapstructure:"workers"`

	PollDelay            time.Duration `mapstructure:"poll_delay"`
	DefaultCreateTimeout time.Duration `mapstructure:"default_create_timeout"`
}

// DefinitionsConfig points at the node definition catalog served through the
// information broker.
type DefinitionsConfig struct {
	Path string `mapstructure:"path"`
}

// HetznerConfig defines the Hetzner backend configuration.
type HetznerConfig struct {
	Enabled    bool              `mapstructure:"enabled"`
	APIToken   string            `mapstructure:"api_token"`
	ServerType string            `mapstructure:"server_type"`
	Image      string            `mapstructure:"image"`
	Location   string            `mapstructure:"location"`
	Labels     map[string]string `mapstructure:"labels"`
}

// Validate validates the configuration for correctness and completeness
func (c *Config) Validate() error {
	if c.Hetzner.Enabled && c.Hetzner.APIToken == "" {
		return fmt.Errorf("hetzner.api_token is required (set INFRAWEAVE_HETZNER_API_TOKEN env var)")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if c.Log.Level != "" && !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log.level: %s (must be debug, info, warn, or error)", c.Log.Level)
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("invalid log.format: %s (must be json or text)", c.Log.Format)
	}

	if c.Processor.Strategy != "" && c.Processor.Strategy != "sequential" && c.Processor.Strategy != "parallel" {
		return fmt.Errorf("invalid processor.strategy: %s (must be sequential or parallel)", c.Processor.Strategy)
	}
	if c.Processor.Workers < 0 {
		return fmt.Errorf("processor.workers must not be negative")
	}

	if c.Service.ShutdownTimeout > 0 && c.Service.ShutdownTimeout < time.Second {
		return fmt.Errorf("service.shutdown_timeout must be at least 1 second")
	}
	if c.Processor.PollDelay > 0 && c.Processor.PollDelay < 100*time.Millisecond {
		return fmt.Errorf("processor.poll_delay must be at least 100ms")
	}

	c.setDefaults()
	return nil
}

// setDefaults sets default values for configuration fields that are not set
func (c *Config) setDefaults() {
	if c.Service.ShutdownTimeout <= 0 {
		c.Service.ShutdownTimeout = 30 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.DB.Path == "" {
		c.DB.Path = "./data/infraweave.db"
	}
	if c.DB.MaxOpenConns <= 0 {
		c.DB.MaxOpenConns = 25
	}
	if c.DB.MaxIdleConns <= 0 {
		c.DB.MaxIdleConns = 5
	}
	if c.DB.ConnMaxLifetime <= 0 {
		c.DB.ConnMaxLifetime = 300
	}

	if c.Processor.Strategy == "" {
		c.Processor.Strategy = "sequential"
	}
	if c.Processor.Workers <= 0 {
		c.Processor.Workers = 4
	}
	if c.Processor.PollDelay <= 0 {
		c.Processor.PollDelay = 10 * time.Second
	}
	if c.Processor.DefaultCreateTimeout <= 0 {
		c.Processor.DefaultCreateTimeout = 10 * time.Minute
	}

	if c.Hetzner.ServerType == "" {
		c.Hetzner.ServerType = "cx22"
	}
	if c.Hetzner.Image == "" {
		c.Hetzner.Image = "ubuntu-24.04"
	}
	if c.Hetzner.Location == "" {
		c.Hetzner.Location = "nbg1"
	}
}
