package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

const (
	DeepgramAPIKeyEnv = "DEEPGRAM_API_KEY"
	OpenAIAPIKeyEnv   = "OPENAI_API_KEY"
)

// GetConfigPath returns $XDG_CONFIG_HOME/tripscribe/config.toml, creating the directory.
func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "tripscribe")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile decodes path on top of DefaultConfig, so keys missing from the file keep their defaults.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run tripscribe configure", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
	}

	config := DefaultConfig()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyThreadsDefault()
	return config, nil
}

// LoadOrCreate loads the config, writing the commented default file first if none exists.
func LoadOrCreate() (*Config, error) {
	config, err := Load()
	if errors.Is(err, ErrConfigNotFound) {
		if err := SaveDefaultConfig(); err != nil {
			return nil, err
		}
		return Load()
	}
	return config, err
}

// SaveDefaultConfig writes the commented template to the config path.
func SaveDefaultConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, []byte(defaultConfigTemplate), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Save encodes c to the config path, replacing the file atomically so the watcher sees one write.
func Save(c *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(configPath, c)
}

func SaveFile(path string, c *Config) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.toml")
	if err != nil {
		return fmt.Errorf("failed to create temp config: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString("# tripscribe configuration\n\n"); err != nil {
		tmp.Close()
		return err
	}
	if err := toml.NewEncoder(tmp).Encode(c); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	return nil
}

// applyThreadsDefault sets default threads for local transcription if not explicitly set
func (c *Config) applyThreadsDefault() {
	if c.Engine.Threads == 0 {
		c.Engine.Threads = max(runtime.NumCPU()-1, 1)
	}
}

// APIKeyEnv returns the environment variable holding the key for the configured recognizer.
func (c *Config) APIKeyEnv() string {
	switch c.Engine.Recognizer {
	case "openai":
		return OpenAIAPIKeyEnv
	case "deepgram":
		return DeepgramAPIKeyEnv
	}
	return ""
}

func (c *Config) APIKey() string {
	if env := c.APIKeyEnv(); env != "" {
		return os.Getenv(env)
	}
	return ""
}
