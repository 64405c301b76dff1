package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	SentimentEndpoint string        `env:"SENTIMENT_ENDPOINT"`
	SentimentAPIKey   string        `env:"SENTIMENT_API_KEY"`
	SentimentLanguage string        `env:"SENTIMENT_LANGUAGE" default:"en"`
	SentimentTimeout  time.Duration `env:"SENTIMENT_TIMEOUT" default:"10s"`

	ScoreCacheTTL       time.Duration `env:"SCORE_CACHE_TTL" default:"24h"`
	ScoreMemoryCacheTTL time.Duration `env:"SCORE_MEMORY_CACHE_TTL" default:"10m"`

	ConversationLockTTL  time.Duration `env:"CONVERSATION_LOCK_TTL" default:"30s"`
	ConversationLockWait time.Duration `env:"CONVERSATION_LOCK_WAIT" default:"10s"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND" default:"5"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST" default:"10"`

	// Optional. When empty, stored passwords are not encrypted.
	CredentialEncryptionKey string `env:"CREDENTIAL_ENCRYPTION_KEY"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"REDIS_URL", cfg.RedisURL},
		{"SENTIMENT_ENDPOINT", cfg.SentimentEndpoint},
		{"SENTIMENT_API_KEY", cfg.SentimentAPIKey},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if _, err := url.ParseRequestURI(cfg.SentimentEndpoint); err != nil {
		return fmt.Errorf("SENTIMENT_ENDPOINT must be a valid URL: %w", err)
	}

	if cfg.SentimentTimeout <= 0 {
		return errors.New("SENTIMENT_TIMEOUT must be positive")
	}
	if cfg.ConversationLockTTL <= 0 {
		return errors.New("CONVERSATION_LOCK_TTL must be positive")
	}
	if cfg.RateLimitPerSecond <= 0 || cfg.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_PER_SECOND and RATE_LIMIT_BURST must be positive")
	}

	if cfg.CredentialEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.CredentialEncryptionKey)
		if err != nil {
			return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if cfg.IsProduction() {
		if mode := sslMode(cfg.DatabaseURL); mode == "disable" || mode == "allow" {
			return fmt.Errorf("DATABASE_URL uses sslmode=%s which is not allowed in production", mode)
		}
	}

	return nil
}

// sslMode extracts the lowercased sslmode query parameter, or "" when absent.
func sslMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Query().Get("sslmode"))
}
