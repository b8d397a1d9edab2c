package config

import (
	"fmt"
	"time"

	"github.com/ondelive/onde/internal/logging"
)

// Config represents the application configuration
type Config struct {
	API     APIConfig      `json:"api" mapstructure:"api"`
	Hub     HubConfig      `json:"hub" mapstructure:"hub"`
	Socket  SocketConfig   `json:"socket" mapstructure:"socket"`
	State   StateConfig    `json:"state" mapstructure:"state"`
	Logging logging.Config `json:"logging" mapstructure:"logging"`
}

// APIConfig represents REST backend configuration
type APIConfig struct {
	BaseURL string        `json:"base_url" mapstructure:"base_url"`
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`
}

// HubConfig represents push-hub connection configuration
type HubConfig struct {
	URL string `json:"url" mapstructure:"url"`
}

// SocketConfig represents live-chat socket configuration
type SocketConfig struct {
	URL string `json:"url" mapstructure:"url"`
}

// StateConfig represents local state persistence configuration
type StateConfig struct {
	// Dir is where player preferences (volume, favorites) are kept
	// between sessions.
	Dir string `json:"dir" mapstructure:"dir"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:7000/api",
			Timeout: 30 * time.Second,
		},
		Hub: HubConfig{
			URL: "ws://localhost:7000/hubs/livehub",
		},
		Socket: SocketConfig{
			URL: "ws://localhost:7000/socket",
		},
		State: StateConfig{
			Dir: ".onde",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return NewConfigError("api.base_url", "base URL is required")
	}
	if c.API.Timeout < 0 {
		return NewConfigError("api.timeout", "timeout cannot be negative")
	}
	if c.Hub.URL == "" {
		return NewConfigError("hub.url", "hub URL is required")
	}
	if c.Socket.URL == "" {
		return NewConfigError("socket.url", "socket URL is required")
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
