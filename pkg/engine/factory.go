package engine

import (
	"fmt"
	"time"
)

// Config selects and parameterizes the engine implementation.
type Config struct {
	Mode         string        `json:"mode" mapstructure:"mode"`
	APIKey       string        `json:"api_key" mapstructure:"api_key"`
	MaxTokens    int64         `json:"max_tokens" mapstructure:"max_tokens"`
	MockInterval time.Duration `json:"mock_interval" mapstructure:"mock_interval"`
}

// New builds the engine named by cfg.Mode.
func New(cfg Config) (Engine, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockEngine(cfg.MockInterval), nil
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic engine requires an API key")
		}
		return NewAnthropicEngine(cfg.APIKey, cfg.MaxTokens), nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai engine requires an API key")
		}
		return NewOpenAIEngine(cfg.APIKey, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown engine mode: %s", cfg.Mode)
	}
}
