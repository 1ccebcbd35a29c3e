package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderOllama = "ollama"
)

// Config application configuration
type Config struct {
	HTTP     HTTP
	Model    Model
	Data     Data
	Telegram Telegram
	LogLevel string `env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Addr string `env:"HTTP_ADDR" env-default:":8080"`
}

type Model struct {
	Provider      string        `env:"MODEL_PROVIDER" env-default:"openai"`
	Name          string        `env:"MODEL_NAME"`
	Temperature   float32       `env:"MODEL_TEMPERATURE" env-default:"0.2"`
	MaxTokens     int           `env:"MODEL_MAX_TOKENS" env-default:"300"`
	Timeout       time.Duration `env:"MODEL_TIMEOUT" env-default:"30s"`
	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	GeminiAPIKey  string        `env:"GEMINI_API_KEY"`
	OllamaHost    string        `env:"OLLAMA_HOST"`
}

type Data struct {
	Dir           string `env:"DATA_DIR" env-default:"data"`
	MedicinesFile string `env:"MEDICINES_FILE"`
	ChatDBPath    string `env:"CHAT_DB_PATH"`
	// SessionIdleTTL evicts sessions unused for this long; zero keeps them forever
	SessionIdleTTL time.Duration `env:"SESSION_IDLE_TTL" env-default:"24h"`
}

type Telegram struct {
	Token string `env:"TELEGRAM_BOT_TOKEN"`
}

// LogValue hides secrets when the config is logged
func (c Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("http_addr", c.HTTP.Addr),
		slog.Group("model",
			slog.String("provider", c.Model.Provider),
			slog.String("name", c.Model.Name),
			slog.Float64("temperature", float64(c.Model.Temperature)),
			slog.Int("max_tokens", c.Model.MaxTokens),
			slog.Duration("timeout", c.Model.Timeout),
			slog.String("openai_api_key", hidden(c.Model.OpenAIAPIKey)),
			slog.String("openai_base_url", c.Model.OpenAIBaseURL),
			slog.String("gemini_api_key", hidden(c.Model.GeminiAPIKey)),
			slog.String("ollama_host", c.Model.OllamaHost),
		),
		slog.Group("data",
			slog.String("dir", c.Data.Dir),
			slog.String("medicines_file", c.Data.MedicinesFile),
			slog.String("chat_db_path", c.Data.ChatDBPath),
			slog.Duration("session_idle_ttl", c.Data.SessionIdleTTL),
		),
		slog.String("telegram_token", hidden(c.Telegram.Token)),
	)
}

func hidden(secret string) string {
	if secret == "" {
		return ""
	}
	return "<hidden>"
}

// Load reads .env (when present) and the environment, then validates
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the provider and its credentials
func (c *Config) Validate() error {
	c.Model.Provider = strings.ToLower(strings.TrimSpace(c.Model.Provider))

	switch c.Model.Provider {
	case ProviderOpenAI:
		if c.Model.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable is empty")
		}
	case ProviderGemini:
		if c.Model.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY environment variable is empty")
		}
	case ProviderOllama:
		if c.Model.OllamaHost == "" {
			return fmt.Errorf("OLLAMA_HOST environment variable is empty")
		}
	default:
		return fmt.Errorf("unknown MODEL_PROVIDER %q", c.Model.Provider)
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be between 0 and 2, got %v", c.Model.Temperature)
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("MODEL_MAX_TOKENS must be positive, got %d", c.Model.MaxTokens)
	}
	if c.Data.SessionIdleTTL < 0 {
		return fmt.Errorf("SESSION_IDLE_TTL must not be negative, got %s", c.Data.SessionIdleTTL)
	}
	return nil
}

// SlogLevel maps LOG_LEVEL to a slog level, defaulting to info
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
