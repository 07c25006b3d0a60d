package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL,notEmpty,required"`
	APIPort     string `env:"API_PORT" envDefault:"8001"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY,notEmpty,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.x.ai/v1"`
	TitleModel    string `env:"TITLE_MODEL" envDefault:"grok-beta"`

	JWTSecret     string        `env:"JWT_SECRET,notEmpty,required"`
	JWTExpiration time.Duration `env:"JWT_EXPIRATION" envDefault:"168h"`

	ModelRegistryPath    string `env:"MODEL_REGISTRY_PATH"`
	InsuranceCatalogPath string `env:"INSURANCE_CATALOG_PATH"`

	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"60s"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads the config from the given variables instead of the process
// environment.
func LoadFrom(environment map[string]string) (Config, error) {
	return parse(env.Options{Environment: environment})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		return Config{}, fmt.Errorf("REQUEST_TIMEOUT must be positive, got %v", cfg.RequestTimeout)
	}
	return cfg, nil
}

// SlogLevel parses LOG_LEVEL, falling back to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
