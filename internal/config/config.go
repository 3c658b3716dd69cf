// Package config loads and validates the daemon configuration.
package config

import (
	"fmt"
)

// Config is the root daemon configuration.
type Config struct {
	Server   ServerConfig   `json:"server" mapstructure:"server"`
	Engine   EngineConfig   `json:"engine" mapstructure:"engine"`
	Sessions SessionsConfig `json:"sessions" mapstructure:"sessions"`
	Events   EventsConfig   `json:"events" mapstructure:"events"`
	Janitor  JanitorConfig  `json:"janitor" mapstructure:"janitor"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
	DataDir  string         `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds the HTTP gateway settings.
type ServerConfig struct {
	Port         int    `json:"port" mapstructure:"port"`
	SharedSecret string `json:"shared_secret" mapstructure:"shared_secret"`
}

// EngineConfig selects the execution engine.
type EngineConfig struct {
	Mode           string `json:"mode" mapstructure:"mode"` // mock, anthropic, openai
	APIKey         string `json:"api_key" mapstructure:"api_key"`
	MaxTokens      int64  `json:"max_tokens" mapstructure:"max_tokens"`
	MockIntervalMS int    `json:"mock_interval_ms" mapstructure:"mock_interval_ms"`
}

// SessionsConfig bounds the session table.
type SessionsConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// EventsConfig sizes the per-subscription event buffers.
type EventsConfig struct {
	Buffer int `json:"buffer" mapstructure:"buffer"`
}

// JanitorConfig drives periodic housekeeping.
type JanitorConfig struct {
	Schedule     string `json:"schedule" mapstructure:"schedule"`
	OrphanAgeMin int    `json:"orphan_age_min" mapstructure:"orphan_age_min"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level   string `json:"level" mapstructure:"level"`
	File    string `json:"file" mapstructure:"file"`
	Console bool   `json:"console" mapstructure:"console"`
	Pretty  bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize int    `json:"max_size" mapstructure:"max_size"` // MB
}

// TracingConfig enables the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8787,
		},
		Engine: EngineConfig{
			Mode:      "mock",
			MaxTokens: 8192,
		},
		Sessions: SessionsConfig{
			Capacity: 100,
		},
		Events: EventsConfig{
			Buffer: 256,
		},
		Janitor: JanitorConfig{
			Schedule:     "* * * * *",
			OrphanAgeMin: 5,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			Pretty:  true,
			MaxSize: 100,
		},
		Tracing: TracingConfig{
			SampleRatio: 1,
		},
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	switch c.Engine.Mode {
	case "", "mock":
	case "anthropic", "openai":
		if c.Engine.APIKey == "" {
			return fmt.Errorf("engine mode %q requires an api_key", c.Engine.Mode)
		}
	default:
		return fmt.Errorf("unknown engine mode: %s", c.Engine.Mode)
	}
	if c.Sessions.Capacity <= 0 {
		return fmt.Errorf("sessions capacity must be positive, got %d", c.Sessions.Capacity)
	}
	if c.Events.Buffer <= 0 {
		return fmt.Errorf("events buffer must be positive, got %d", c.Events.Buffer)
	}
	if c.Janitor.OrphanAgeMin < 0 {
		return fmt.Errorf("janitor orphan age must not be negative, got %d", c.Janitor.OrphanAgeMin)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample ratio must be in [0, 1], got %g", c.Tracing.SampleRatio)
	}
	return nil
}
