// Package config loads bindr configuration: a user-level YAML file at
// ~/.bindr/config.yaml, an optional per-project .bindr.yaml overlay, and
// environment variable overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"Bindr/pkg/engine/api"
)

const (
	userConfigDir  = ".bindr"
	userConfigFile = "config.yaml"
	projectFile    = ".bindr.yaml"

	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o-mini"
	defaultAPIKeyEnv = "LLM_API_KEY"
)

// Config is the effective bindr configuration.
type Config struct {
	// BaseURL is the OpenAI-compatible endpoint root.
	BaseURL string `yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key. The
	// key itself never lives in the config file.
	APIKeyEnv string `yaml:"api_key_env"`

	// Model is the default model; ModeModels pins specific modes to
	// other models (keys are mode names).
	Model      string            `yaml:"model"`
	ModeModels map[string]string `yaml:"mode_models"`

	MaxTokens int    `yaml:"max_tokens"`
	LogLevel  string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:   defaultBaseURL,
		APIKeyEnv: defaultAPIKeyEnv,
		Model:     defaultModel,
	}
}

// Load builds the effective config for a project directory: defaults,
// then the user file, then the project overlay, then environment
// variables. Missing files are not errors; malformed files are.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		if err := cfg.mergeFile(filepath.Join(home, userConfigDir, userConfigFile)); err != nil {
			return nil, err
		}
	}

	if projectDir != "" {
		if err := cfg.mergeFile(filepath.Join(projectDir, projectFile)); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// mergeFile overlays non-empty values from a YAML file, if it exists.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	c.merge(&overlay)
	return nil
}

func (c *Config) merge(o *Config) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.APIKeyEnv != "" {
		c.APIKeyEnv = o.APIKeyEnv
	}
	if o.Model != "" {
		c.Model = o.Model
	}
	if o.MaxTokens > 0 {
		c.MaxTokens = o.MaxTokens
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	for mode, model := range o.ModeModels {
		if c.ModeModels == nil {
			c.ModeModels = make(map[string]string)
		}
		c.ModeModels[mode] = model
	}
}

// applyEnv lets environment variables win over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.Model = v
	}
}

// APIKey resolves the API key from the configured environment variable.
// Empty means no key; callers fall back to the mock model.
func (c *Config) APIKey() string {
	return os.Getenv(c.APIKeyEnv)
}

// ModelFor returns the model pinned to a mode, or the default model.
func (c *Config) ModelFor(mode api.Mode) string {
	if m, ok := c.ModeModels[string(mode)]; ok && m != "" {
		return m
	}
	return c.Model
}

// ModeModelMap converts the string-keyed map to mode keys, dropping
// entries that do not name a valid mode.
func (c *Config) ModeModelMap() map[api.Mode]string {
	if len(c.ModeModels) == 0 {
		return nil
	}
	out := make(map[api.Mode]string, len(c.ModeModels))
	for k, v := range c.ModeModels {
		mode, err := api.ParseMode(k)
		if err != nil {
			continue
		}
		out[mode] = v
	}
	return out
}
