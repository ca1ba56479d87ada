// Package config loads the chatgraph service configuration from a YAML
// file with ${VAR} environment expansion, plus plain-environment fallbacks
// for secrets so a config file is optional in development.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Tools      ToolsConfig      `yaml:"tools"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Engine     EngineConfig     `yaml:"engine"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig holds the HTTP listen configuration.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// ModelConfig selects the chat model provider.
type ModelConfig struct {
	// Provider is "openai" or "anthropic".
	Provider string `yaml:"provider"`
	// Name is the provider-specific model name, e.g. "gpt-4o-mini".
	Name   string `yaml:"name"`
	APIKey string `yaml:"api_key"`
}

// ToolsConfig holds the upstream API keys for the worker tools.
type ToolsConfig struct {
	OpenWeatherAPIKey string `yaml:"openweather_api_key"`
	NewsAPIKey        string `yaml:"news_api_key"`
}

// CheckpointConfig selects checkpoint storage. An empty RedisAddr keeps
// checkpoints in process memory.
type CheckpointConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	KeyPrefix     string `yaml:"key_prefix"`
}

// EngineConfig tunes the graph executor.
type EngineConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// LoggingConfig holds log output configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Model:   ModelConfig{Provider: "openai", Name: "gpt-4o-mini"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads the YAML file at path, expands ${VAR} references from the
// environment, applies environment fallbacks, and validates the result. An
// empty path yields the defaults plus environment fallbacks.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := expandEnvVars(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyEnvFallbacks()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// expandEnvVars replaces ${VAR} patterns with environment values; unset
// variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(re.FindStringSubmatch(match)[1])
	})
}

// applyEnvFallbacks fills unset fields from well-known environment
// variables so secrets never need to live in the file.
func (c *Config) applyEnvFallbacks() {
	setIfEmpty := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}

	switch c.Model.Provider {
	case "anthropic":
		setIfEmpty(&c.Model.APIKey, "ANTHROPIC_API_KEY")
	default:
		setIfEmpty(&c.Model.APIKey, "OPENAI_API_KEY")
	}
	setIfEmpty(&c.Tools.OpenWeatherAPIKey, "OPENWEATHER_API_KEY")
	setIfEmpty(&c.Tools.NewsAPIKey, "NEWS_API_KEY")
	setIfEmpty(&c.Checkpoint.RedisAddr, "REDIS_ADDR")
	setIfEmpty(&c.Logging.Level, "LOG_LEVEL")

	if c.Engine.MaxSteps == 0 {
		if v := os.Getenv("MAX_STEPS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				c.Engine.MaxSteps = n
			}
		}
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("model.provider must be openai or anthropic, got %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return fmt.Errorf("model.name is required")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Engine.MaxSteps < 0 {
		return fmt.Errorf("engine.max_steps must not be negative")
	}
	return nil
}
