package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config carries the process-level settings. Values come from the
// environment, optionally seeded from a .env file in development.
type Config struct {
	Environment     string
	HTTPAddr        string
	DatabaseURL     string
	LogLevel        string
	FiscalCacheTTL  time.Duration
	DefaultCompany  string
	SettlementMonth int
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		Environment:     getEnv("KESSAN_ENV", "development"),
		HTTPAddr:        getEnv("KESSAN_HTTP_ADDR", ":8080"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		LogLevel:        getEnv("KESSAN_LOG_LEVEL", "info"),
		FiscalCacheTTL:  time.Minute,
		DefaultCompany:  getEnv("KESSAN_DEFAULT_COMPANY", "Default Construction"),
		SettlementMonth: 3,
	}

	if raw := os.Getenv("KESSAN_FISCAL_CACHE_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse KESSAN_FISCAL_CACHE_TTL: %w", err)
		}
		cfg.FiscalCacheTTL = ttl
	}
	if raw := os.Getenv("KESSAN_SETTLEMENT_MONTH"); raw != "" {
		month, err := strconv.Atoi(raw)
		if err != nil || month < 1 || month > 12 {
			return Config{}, fmt.Errorf("KESSAN_SETTLEMENT_MONTH must be 1-12, got %q", raw)
		}
		cfg.SettlementMonth = month
	}
	if cfg.DatabaseURL == "" && cfg.IsProduction() {
		return Config{}, fmt.Errorf("DATABASE_URL is required in production")
	}
	return cfg, nil
}

// IsProduction reports whether the process runs with production settings.
func (c Config) IsProduction() bool { return c.Environment == "production" }

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

var Module = fx.Module("config",
	fx.Provide(Load),
)
