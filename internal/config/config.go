// Package config loads environment-driven configuration for the library's
// demo/runtime wiring (the adapters a Store is typically composed from),
// grounded on event-service/internal/config: godotenv + typed getEnv
// helpers with defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the environment-driven wiring for a Store: which Postgres
// database backs the log and (optionally) the cache, which Redis backs
// the cache, and which RabbitMQ exchange backs the bus.
type Config struct {
	StoreNamespace string

	DatabaseURL string

	RedisURL     string
	CacheTTL     time.Duration
	UseRedisCache bool

	RabbitURL      string
	RabbitExchange string

	IdempotencyRedisAddr string
	IdempotencyDB        int
	IdempotencyTTL       time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) then the process environment, applying the
// same typed-default pattern as event-service/internal/config.Load.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.StoreNamespace = getEnv("EVENTSTORE_NAMESPACE", "eventstore")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	cfg.RedisURL = getEnv("REDIS_URL", "redis://localhost:6379/0")
	cfg.CacheTTL = getDuration("CACHE_TTL", 5*time.Minute)
	cfg.UseRedisCache = getEnv("USE_REDIS_CACHE", "true") == "true"

	cfg.RabbitURL = getEnv("RABBIT_URL", "")
	cfg.RabbitExchange = getEnv("RABBIT_EXCHANGE", "eventstore.events")

	cfg.IdempotencyRedisAddr = getEnv("IDEMPOTENCY_REDIS_ADDR", "localhost:6379")
	cfg.IdempotencyDB = getIntEnv("IDEMPOTENCY_REDIS_DB", 1)
	cfg.IdempotencyTTL = getDuration("IDEMPOTENCY_TTL", 24*time.Hour)

	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogFormat = getEnv("LOG_FORMAT", "console")

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: missing DATABASE_URL")
	}
	if cfg.RabbitURL == "" {
		return nil, fmt.Errorf("config: missing RABBIT_URL")
	}

	return cfg, nil
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getIntEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
