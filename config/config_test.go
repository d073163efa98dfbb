package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.IncomingImageTimeout)
	assert.Equal(t, 4, cfg.Workers)
	assert.Positive(t, cfg.SendBuffer)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("CHANNEL_REQUEST_TIMEOUT", "5")
	t.Setenv("CHANNEL_IMAGE_TIMEOUT", "60")
	t.Setenv("CHANNEL_PING_INTERVAL", "15")
	t.Setenv("CHANNEL_WORKERS", "8")

	cfg := ConfigFromEnv()
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, time.Minute, cfg.IncomingImageTimeout)
	assert.Equal(t, 15*time.Second, cfg.PingInterval)
	assert.Equal(t, 8, cfg.Workers)
}

func TestConfigFromEnvIgnoresBadValues(t *testing.T) {
	t.Setenv("CHANNEL_REQUEST_TIMEOUT", "soon")
	t.Setenv("CHANNEL_WORKERS", "-2")

	cfg := ConfigFromEnv()
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 4, cfg.Workers)
}

func TestDefaultRedisConfig(t *testing.T) {
	cfg := DefaultRedisConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr)
	assert.Empty(t, cfg.Password)
	assert.Equal(t, 0, cfg.DB)
	assert.Equal(t, "channel:geocode:", cfg.Prefix)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("REDIS_PASSWORD", "secret")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_GEOCODE_PREFIX", "test:")
	t.Setenv("REDIS_GEOCODE_TTL", "600")

	cfg := RedisConfigFromEnv()
	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 3, cfg.DB)
	assert.Equal(t, "test:", cfg.Prefix)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
}

func TestServerConfigFromEnv(t *testing.T) {
	t.Setenv("MOCKSERVER_ADDR", "127.0.0.1:9000")
	t.Setenv("MOCKSERVER_AUTH_TOKEN", "secret")
	t.Setenv("MOCKSERVER_MAX_CONNECTIONS", "nope")
	t.Setenv("MOCKSERVER_IMAGES", "false")
	t.Setenv("MOCKSERVER_TEXTING", "maybe")

	cfg := ServerConfigFromEnv()
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr)
	assert.Equal(t, "secret", cfg.AuthToken)
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.False(t, cfg.ImagesSupported)
	assert.True(t, cfg.TextingSupported)
	assert.True(t, cfg.LocationsSupported)
}
