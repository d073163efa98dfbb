package location

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/orchestra-mcp/channel/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStore struct {
	data    map[string]string
	failing bool
}

func (s *mapStore) Get(_ context.Context, key string) (string, bool, error) {
	if s.failing {
		return "", false, errors.New("store down")
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key, address string) error {
	if s.failing {
		return errors.New("store down")
	}
	s.data[key] = address
	return nil
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "40.71280,-74.00600", CacheKey(40.7128, -74.006))
	assert.Equal(t, CacheKey(1.000001, 2.000001), CacheKey(1.000002, 2.000002))
}

func TestCachingGeocoderStoresAndHits(t *testing.T) {
	store := &mapStore{data: map[string]string{}}
	next := &fakeGeocoder{address: "1 Main St"}
	g := NewCachingGeocoder(next, store, zerolog.Nop())

	addr, err := g.ReverseGeocode(context.Background(), 40, -74)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr)
	assert.Equal(t, "1 Main St", store.data[CacheKey(40, -74)])

	next.address = "changed"
	addr, err = g.ReverseGeocode(context.Background(), 40, -74)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr)
	assert.Equal(t, 1, next.calls)
}

func TestCachingGeocoderSkipsEmptyResults(t *testing.T) {
	store := &mapStore{data: map[string]string{}}
	g := NewCachingGeocoder(&fakeGeocoder{}, store, zerolog.Nop())

	addr, err := g.ReverseGeocode(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Empty(t, addr)
	assert.Empty(t, store.data)
}

func TestCachingGeocoderSurvivesStoreFailure(t *testing.T) {
	next := &fakeGeocoder{address: "1 Main St"}
	g := NewCachingGeocoder(next, &mapStore{failing: true}, zerolog.Nop())

	addr, err := g.ReverseGeocode(context.Background(), 40, -74)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr)
}

func TestRedisEntryRoundTrip(t *testing.T) {
	entry := redisEntry{Address: "1 Main St", StoredAt: time.Now().UTC().Truncate(time.Second)}
	data, err := json.Marshal(entry)
	require.NoError(t, err)

	var out redisEntry
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, entry.Address, out.Address)
	assert.True(t, entry.StoredAt.Equal(out.StoredAt))
}

func TestRedisStoreUnreachableFallsBack(t *testing.T) {
	cfg := config.DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	store := NewRedisAddressStore(cfg, zerolog.Nop())
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, store.Ping(ctx))

	next := &fakeGeocoder{address: "1 Main St"}
	g := NewCachingGeocoder(next, store, zerolog.Nop())
	addr, err := g.ReverseGeocode(ctx, 40, -74)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr)
}
