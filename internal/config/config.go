package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Logging     LoggingConfig
	RateLimit   RateLimitConfig
	Ingest      IngestConfig
	Environment string
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type RateLimitConfig struct {
	IngestPerMinute int `yaml:"ingest_per_minute"`
	QueryPerMinute  int `yaml:"query_per_minute"`
}

// IngestConfig bounds a single ingestion: the largest batch the API accepts
// and the execution timeouts carried by the bulk load and each promotion
// statement. Batches may be large, so the timeouts default to minutes.
type IngestConfig struct {
	MaxBatchRows    int           `yaml:"max_batch_rows"`
	StepTimeout     time.Duration `yaml:"step_timeout"`
	BackfillTimeout time.Duration `yaml:"backfill_timeout"`
}

// fileConfig mirrors Config for the optional YAML overlay. Sections present
// in the file replace the environment-derived section wholesale.
type fileConfig struct {
	Server    *ServerConfig    `yaml:"server"`
	Database  *DatabaseConfig  `yaml:"database"`
	Logging   *LoggingConfig   `yaml:"logging"`
	RateLimit *RateLimitConfig `yaml:"rate_limit"`
	Ingest    *IngestConfig    `yaml:"ingest"`
}

func Load() (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:            getEnv("DATABASE_URL", ""),
			MaxConnections: getEnvInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			IngestPerMinute: getEnvInt("RATE_LIMIT_INGEST", 30),
			QueryPerMinute:  getEnvInt("RATE_LIMIT_QUERY", 300),
		},
		Ingest: IngestConfig{
			MaxBatchRows:    getEnvInt("INGEST_MAX_BATCH_ROWS", 10000),
			StepTimeout:     getEnvDuration("INGEST_STEP_TIMEOUT", 2*time.Minute),
			BackfillTimeout: getEnvDuration("BACKFILL_TIMEOUT", 3*time.Minute),
		},
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if cfg.Database.URL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

// LoadFile applies a YAML config file on top of the environment-derived
// configuration.
func LoadFile(path string) (Config, error) {
	cfg, err := Load()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var overlay fileConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	if overlay.Server != nil {
		cfg.Server = *overlay.Server
	}
	if overlay.Database != nil {
		cfg.Database = *overlay.Database
	}
	if overlay.Logging != nil {
		cfg.Logging = *overlay.Logging
	}
	if overlay.RateLimit != nil {
		cfg.RateLimit = *overlay.RateLimit
	}
	if overlay.Ingest != nil {
		cfg.Ingest = *overlay.Ingest
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
