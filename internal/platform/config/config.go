package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	AppURL    string `env:"APP_URL"` // public origin for UI push origin checks
	Port      string `env:"PORT" default:"9090"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// Backend the gateway drives.
	InvokeAPIURL    string `env:"INVOKE_API_URL"`
	InvokeSocketURL string `env:"INVOKE_SOCKET_URL"`
	QueueID         string `env:"QUEUE_ID" default:"default"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"` // empty disables the descriptor cache

	// Auto-preprocess effect tuning.
	QuietPeriod       time.Duration `env:"PREPROCESS_QUIET_PERIOD" default:"300ms"`
	CompletionTimeout time.Duration `env:"PREPROCESS_COMPLETION_TIMEOUT" default:"0"` // 0 disables

	ImageDTOCacheTTL time.Duration `env:"IMAGE_DTO_CACHE_TTL" default:"1h"`
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

func validate(cfg *Config) error {
	required := map[string]string{
		"INVOKE_API_URL":    cfg.InvokeAPIURL,
		"INVOKE_SOCKET_URL": cfg.InvokeSocketURL,
		"DATABASE_URL":      cfg.DatabaseURL,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if _, err := url.Parse(cfg.InvokeAPIURL); err != nil {
		return fmt.Errorf("INVOKE_API_URL must be a valid URL: %w", err)
	}
	u, err := url.Parse(cfg.InvokeSocketURL)
	if err != nil {
		return fmt.Errorf("INVOKE_SOCKET_URL must be a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("INVOKE_SOCKET_URL must use ws or wss scheme, got %q", u.Scheme)
	}

	if cfg.QuietPeriod <= 0 {
		return fmt.Errorf("PREPROCESS_QUIET_PERIOD must be positive, got %s", cfg.QuietPeriod)
	}
	if cfg.CompletionTimeout < 0 {
		return fmt.Errorf("PREPROCESS_COMPLETION_TIMEOUT must not be negative, got %s", cfg.CompletionTimeout)
	}

	return nil
}
