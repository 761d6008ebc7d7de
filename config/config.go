// Package config loads and saves the bilibook application configuration —
// a TOML file under the user config directory, created with defaults on
// first run so users have something to edit.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// LLMConfig holds endpoint and model settings.
type LLMConfig struct {
	// APIURL is the OpenAI-compatible endpoint base URL.
	APIURL string `toml:"api_url"`
	// Models is the model rotation list, preferred first.
	Models []string `toml:"models"`
}

// TranslateConfig holds pipeline settings.
type TranslateConfig struct {
	// Language is the target language name used in prompts.
	Language string `toml:"language"`
	// SendNum is the token budget per batch.
	SendNum int `toml:"send_num"`
	// IntervalMS is the rate-limit sleep after each successful call.
	IntervalMS int `toml:"interval_ms"`
	// MaxAttempts bounds retries per translate call.
	MaxAttempts int `toml:"max_attempts"`
	// Single replaces the original text instead of producing a bilingual
	// document.
	Single bool `toml:"single"`
}

// GlossaryConfig holds glossary settings.
type GlossaryConfig struct {
	// Enabled turns on terminology-consistency tracking.
	Enabled bool `toml:"enabled"`
	// Path overrides the glossary file location (default:
	// glossary.json in the data directory).
	Path string `toml:"path"`
	// MaxEntries is the hard entry ceiling.
	MaxEntries int `toml:"max_entries"`
}

// Config is the full application configuration.
type Config struct {
	LLM       LLMConfig       `toml:"llm"`
	Translate TranslateConfig `toml:"translate"`
	Glossary  GlossaryConfig  `toml:"glossary"`
}

// Defaults.
const (
	DefaultAPIURL      = "https://api.openai.com/v1"
	DefaultLanguage    = "Simplified Chinese"
	DefaultSendNum     = 1600
	DefaultMaxAttempts = 7
	DefaultMaxEntries  = 500
)

// DefaultModels is the default model rotation list.
func DefaultModels() []string {
	return []string{"gpt-4o-mini", "gpt-4o"}
}

const (
	configFileName = "config.toml"
	appDirName     = "bilibook"
)

// Default returns a configuration populated with defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			APIURL: DefaultAPIURL,
			Models: DefaultModels(),
		},
		Translate: TranslateConfig{
			Language:    DefaultLanguage,
			SendNum:     DefaultSendNum,
			MaxAttempts: DefaultMaxAttempts,
		},
		Glossary: GlossaryConfig{
			Enabled:    true,
			MaxEntries: DefaultMaxEntries,
		},
	}
}

// Dir returns the bilibook config directory, creating it if needed.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user config directory: %w", err)
	}
	dir := filepath.Join(base, appDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Path returns the config file path.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Load reads the configuration, writing the defaults on first run.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("saving default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the configuration to the config file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
