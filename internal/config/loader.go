package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Loader handles configuration loading.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path means the default
// location under the user's home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration file, layering environment variables
// with the CONDUIT_ prefix on top. A missing file yields defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("CONDUIT")
	v.AutomaticEnv()

	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, ".conduit")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "conduit.log")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the config file.
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("engine", cfg.Engine)
	v.Set("sessions", cfg.Sessions)
	v.Set("events", cfg.Events)
	v.Set("janitor", cfg.Janitor)
	v.Set("logging", cfg.Logging)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}
	return nil
}

// GetConfigPath returns the resolved config file path.
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".conduit", "conduit.json"), nil
}

// Load is a convenience function that creates a loader and loads the
// config.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
