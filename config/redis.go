package config

import (
	"os"
	"strconv"
	"time"
)

// RedisConfig holds connection settings for the shared reverse geocode
// cache.
type RedisConfig struct {
	Addr     string        // Redis address, default "localhost:6379"
	Password string        // Redis password, default ""
	DB       int           // Redis database number, default 0
	Prefix   string        // Key prefix, default "channel:geocode:"
	TTL      time.Duration // Entry lifetime, default 24h
}

// DefaultRedisConfig returns a RedisConfig with sensible defaults.
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "channel:geocode:",
		TTL:    24 * time.Hour,
	}
}

// RedisConfigFromEnv loads Redis configuration from environment variables.
// Falls back to defaults for any missing values.
func RedisConfigFromEnv() *RedisConfig {
	cfg := DefaultRedisConfig()

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		cfg.Password = pw
	}
	if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			cfg.DB = db
		}
	}
	if prefix := os.Getenv("REDIS_GEOCODE_PREFIX"); prefix != "" {
		cfg.Prefix = prefix
	}
	if ttl, ok := secondsFromEnv("REDIS_GEOCODE_TTL"); ok {
		cfg.TTL = ttl
	}
	return cfg
}
