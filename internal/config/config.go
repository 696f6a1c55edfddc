package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the application configuration.
type Config struct {
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	DatabaseURL  string `env:"DATABASE_URL" envDefault:"file:orbis.db"`
	Addr         string `env:"ORBIS_ADDR" envDefault:":8080"`
	RulesetDir   string `env:"ORBIS_RULESET_DIR" envDefault:"ruleset"`
	LoreDir      string `env:"ORBIS_LORE_DIR" envDefault:"lore_library"`
	TuningFile   string `env:"ORBIS_TUNING_FILE"`
	ArchiveDir   string `env:"ORBIS_ARCHIVE_DIR"`
	SaveDir      string `env:"ORBIS_SAVE_DIR" envDefault:".saves"`
	Seed         int64  `env:"ORBIS_SEED"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is not set")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is empty")
	}
	return &cfg, nil
}

// SlogLevel maps LOG_LEVEL onto a slog level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
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
