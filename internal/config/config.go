package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	// Common
	Env             string        `yaml:"env" env:"ENV" env-default:"local"`
	LogLevel        string        `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	// API
	Port string `yaml:"port" env:"PORT" env-default:"8080"`
	// Storage
	Storage     string `yaml:"storage" env:"STORAGE" env-default:"file"`
	DataDir     string `yaml:"data_dir" env:"DATA_DIR" env-default:"data"`
	RatesFile   string `yaml:"rates_file" env:"RATES_FILE" env-default:"rates.json"`
	HistoryFile string `yaml:"history_file" env:"HISTORY_FILE" env-default:"exchange_rates.json"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
	// Rates
	RatesTTL        time.Duration `yaml:"rates_ttl" env:"RATES_TTL" env-default:"300s"`
	SourceTimeout   time.Duration `yaml:"source_timeout" env:"SOURCE_TIMEOUT" env-default:"10s"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"REFRESH_INTERVAL" env-default:"5m"`
	// Provider
	Provider           string `yaml:"provider" env:"PROVIDER" env-default:"live"`
	CoinGeckoURL       string `yaml:"coingecko_url" env:"COINGECKO_URL" env-default:"https://api.coingecko.com/api/v3"`
	CoinGeckoAPIKey    string `yaml:"coingecko_api_key" env:"COINGECKO_API_KEY"`
	ExchangeRateAPIURL string `yaml:"exchangerate_api_url" env:"EXCHANGERATE_API_URL" env-default:"https://v6.exchangerate-api.com/v6"`
	ExchangeRateAPIKey string `yaml:"exchangerate_api_key" env:"EXCHANGERATE_API_KEY"`
	// Redis (idempotency)
	IdempotencyBackend string        `yaml:"idempotency_backend" env:"IDEMPOTENCY_BACKEND" env-default:"none"`
	RedisAddr          string        `yaml:"redis_addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword      string        `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB            int           `yaml:"redis_db" env:"REDIS_DB" env-default:"0"`
	IdempotencyTTL     time.Duration `yaml:"idempotency_ttl" env:"IDEMPOTENCY_TTL" env-default:"24h"`
}

// Load reads .env (when present), an optional YAML file named by
// CONFIG_PATH, then environment variables, and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Storage {
	case "file":
	case "pg":
		if c.DatabaseURL == "" {
			return errors.New("config: STORAGE=pg requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown STORAGE %q", c.Storage)
	}
	switch c.Provider {
	case "live", "fake":
	default:
		return fmt.Errorf("config: unknown PROVIDER %q", c.Provider)
	}
	switch c.IdempotencyBackend {
	case "none", "redis":
	default:
		return fmt.Errorf("config: unknown IDEMPOTENCY_BACKEND %q", c.IdempotencyBackend)
	}
	if c.RatesTTL <= 0 {
		return errors.New("config: RATES_TTL must be positive")
	}
	if c.SourceTimeout <= 0 {
		return errors.New("config: SOURCE_TIMEOUT must be positive")
	}
	return nil
}

func (c Config) RatesPath() string   { return filepath.Join(c.DataDir, c.RatesFile) }
func (c Config) HistoryPath() string { return filepath.Join(c.DataDir, c.HistoryFile) }
