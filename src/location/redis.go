package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orchestra-mcp/channel/config"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisEntry is the stored value. StoredAt lets operators judge staleness.
type redisEntry struct {
	Address  string    `json:"address"`
	StoredAt time.Time `json:"stored_at"`
}

// RedisAddressStore keeps reverse geocode results in Redis with a TTL.
type RedisAddressStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisAddressStore creates a store. The connection is made lazily;
// call Ping to check it up front.
func NewRedisAddressStore(cfg *config.RedisConfig, logger zerolog.Logger) *RedisAddressStore {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisAddressStore{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.TTL,
		logger: logger.With().Str("component", "redis-address-store").Logger(),
	}
}

// Ping reports whether Redis is reachable.
func (s *RedisAddressStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	s.logger.Info().Str("addr", s.client.Options().Addr).Msg("address store connected")
	return nil
}

// Get reads the address stored under key.
func (s *RedisAddressStore) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}

	var entry redisEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return "", false, fmt.Errorf("decode address entry: %w", err)
	}
	return entry.Address, true, nil
}

// Set stores address under key.
func (s *RedisAddressStore) Set(ctx context.Context, key, address string) error {
	data, err := json.Marshal(redisEntry{Address: address, StoredAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (s *RedisAddressStore) Close() error {
	return s.client.Close()
}
