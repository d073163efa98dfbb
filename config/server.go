package config

import (
	"os"
	"strconv"
)

// ServerConfig holds the mock channel server configuration.
type ServerConfig struct {
	Addr               string `json:"addr"`
	AuthToken          string `json:"auth_token"`
	MaxConnections     int    `json:"max_connections"`
	ReadBufferSize     int    `json:"read_buffer_size"`
	WriteBufferSize    int    `json:"write_buffer_size"`
	ImagesSupported    bool   `json:"images_supported"`
	TextingSupported   bool   `json:"texting_supported"`
	LocationsSupported bool   `json:"locations_supported"`
}

// DefaultServerConfig returns a server that accepts any auth token and
// supports every channel feature.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Addr:               ":8080",
		MaxConnections:     1000,
		ReadBufferSize:     1024,
		WriteBufferSize:    1024,
		ImagesSupported:    true,
		TextingSupported:   true,
		LocationsSupported: true,
	}
}

// ServerConfigFromEnv loads the server configuration from environment
// variables.
func ServerConfigFromEnv() *ServerConfig {
	cfg := DefaultServerConfig()

	if addr := os.Getenv("MOCKSERVER_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	cfg.AuthToken = os.Getenv("MOCKSERVER_AUTH_TOKEN")
	if s := os.Getenv("MOCKSERVER_MAX_CONNECTIONS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			cfg.MaxConnections = n
		}
	}
	boolFromEnv("MOCKSERVER_IMAGES", &cfg.ImagesSupported)
	boolFromEnv("MOCKSERVER_TEXTING", &cfg.TextingSupported)
	boolFromEnv("MOCKSERVER_LOCATIONS", &cfg.LocationsSupported)
	return cfg
}

func boolFromEnv(key string, dst *bool) {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		*dst = b
	}
}
