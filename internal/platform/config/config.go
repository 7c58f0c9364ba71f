// Package config loads application configuration from environment variables.
// All variables use the CLO_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	AI         AIConfig
	Budget     BudgetConfig
	Log        LogConfig
	CLOSetPath string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL selects
// the in-memory store.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. An empty URL disables the
// coverage report cache.
type CacheConfig struct {
	URL string
}

// AIConfig holds configuration for the generative providers.
type AIConfig struct {
	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	DeepSeek  DeepSeekConfig
	Ollama    OllamaConfig
	TimeoutS  int // per-call ceiling for segmentation and mapping, seconds
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string
}

// AnthropicConfig holds Anthropic provider settings.
type AnthropicConfig struct {
	APIKey string
}

// DeepSeekConfig holds DeepSeek provider settings (OpenAI-compatible).
type DeepSeekConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
}

// BudgetConfig caps generative token spend per CLO set. Zero means
// unlimited.
type BudgetConfig struct {
	TokensPerSet int64
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with CLO_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("CLO_SERVER_PORT", 8080),
			Host: envStr("CLO_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("CLO_DATABASE_URL", ""),
			MaxConns: envInt("CLO_DATABASE_MAX_CONNS", 25),
			MinConns: envInt("CLO_DATABASE_MIN_CONNS", 5),
		},
		Cache: CacheConfig{
			URL: envStr("CLO_CACHE_URL", ""),
		},
		AI: AIConfig{
			OpenAI: OpenAIConfig{
				APIKey: envStr("CLO_AI_OPENAI_API_KEY", ""),
			},
			Anthropic: AnthropicConfig{
				APIKey: envStr("CLO_AI_ANTHROPIC_API_KEY", ""),
			},
			DeepSeek: DeepSeekConfig{
				APIKey: envStr("CLO_AI_DEEPSEEK_API_KEY", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("CLO_AI_OLLAMA_ENABLED", false),
				URL:     envStr("CLO_AI_OLLAMA_URL", "http://localhost:11434"),
			},
			TimeoutS: envInt("CLO_AI_TIMEOUT_SECONDS", 120),
		},
		Budget: BudgetConfig{
			TokensPerSet: int64(envInt("CLO_BUDGET_TOKENS_PER_SET", 0)),
		},
		Log: LogConfig{
			Level:  envStr("CLO_LOG_LEVEL", "info"),
			Format: envStr("CLO_LOG_FORMAT", "json"),
		},
		CLOSetPath: envStr("CLO_SET_PATH", ""),
	}

	return cfg, nil
}

// Validate checks that required configuration is present. The heuristic
// scorer works without any provider, so an empty AI section is legal.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("CLO_SERVER_PORT must be 1-65535, got %d", c.Server.Port)
	}
	if c.AI.TimeoutS < 1 {
		return fmt.Errorf("CLO_AI_TIMEOUT_SECONDS must be positive, got %d", c.AI.TimeoutS)
	}
	if c.Budget.TokensPerSet < 0 {
		return fmt.Errorf("CLO_BUDGET_TOKENS_PER_SET must not be negative, got %d", c.Budget.TokensPerSet)
	}
	return nil
}

// HasAIProvider returns true if at least one generative provider is
// configured. Without one, the generative strategy is unavailable and
// segmentation is pattern-only.
func (c *Config) HasAIProvider() bool {
	return c.AI.OpenAI.APIKey != "" ||
		c.AI.Anthropic.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}
