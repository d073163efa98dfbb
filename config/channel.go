package config

import (
	"os"
	"strconv"
	"time"
)

// Fixed protocol and pipeline limits.
const (
	MaxImageDimension     = 1280
	ThumbnailDimension    = 90
	ImageByteBudget       = 512 * 1024
	MaxIncomingDimension  = 3000
	CompressStartQuality  = 90
	CompressFloorQuality  = 10
	CompressQualityStep   = 10
	LastLocationMaxAge    = 5 * time.Second
	ReconnectInitialDelay = time.Second
	ReconnectMaxDelay     = 60 * time.Second
)

// SessionConfig holds the tunables of a channel session.
type SessionConfig struct {
	RequestTimeout       time.Duration `json:"request_timeout"`
	IncomingImageTimeout time.Duration `json:"incoming_image_timeout"`
	PingInterval         time.Duration `json:"ping_interval"`
	WriteTimeout         time.Duration `json:"write_timeout"`
	SendBuffer           int           `json:"send_buffer"`
	Workers              int           `json:"workers"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() *SessionConfig {
	return &SessionConfig{
		RequestTimeout:       30 * time.Second,
		IncomingImageTimeout: 2 * time.Minute,
		PingInterval:         30 * time.Second,
		WriteTimeout:         10 * time.Second,
		SendBuffer:           256,
		Workers:              4,
	}
}

// ConfigFromEnv loads the session configuration from environment
// variables. Durations are in seconds. Missing or malformed values keep
// their defaults.
func ConfigFromEnv() *SessionConfig {
	cfg := DefaultConfig()

	if d, ok := secondsFromEnv("CHANNEL_REQUEST_TIMEOUT"); ok {
		cfg.RequestTimeout = d
	}
	if d, ok := secondsFromEnv("CHANNEL_IMAGE_TIMEOUT"); ok {
		cfg.IncomingImageTimeout = d
	}
	if d, ok := secondsFromEnv("CHANNEL_PING_INTERVAL"); ok {
		cfg.PingInterval = d
	}
	if s := os.Getenv("CHANNEL_WORKERS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.Workers = n
		}
	}
	return cfg
}

func secondsFromEnv(key string) (time.Duration, bool) {
	s := os.Getenv(key)
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return time.Duration(n) * time.Second, true
}
