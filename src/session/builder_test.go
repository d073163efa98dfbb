package session

import (
	"context"
	"testing"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/location"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingGeocoder struct {
	address string
	calls   int
}

func (g *countingGeocoder) ReverseGeocode(context.Context, float64, float64) (string, error) {
	g.calls++
	return g.address, nil
}

type memoryStore map[string]string

func (m memoryStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memoryStore) Set(_ context.Context, key, address string) error {
	m[key] = address
	return nil
}

func TestGeocoderWithoutStoreIsUnwrapped(t *testing.T) {
	next := &countingGeocoder{address: "1 Main St"}
	g, release := NewBuilder(testAddress, "token", "ch").WithGeocoder(next).buildGeocoder(zerolog.Nop())

	assert.Same(t, next, g)
	assert.Nil(t, release)
}

func TestAddressStoreWithoutGeocoderIsIgnored(t *testing.T) {
	g, release := NewBuilder(testAddress, "token", "ch").WithAddressStore(memoryStore{}).buildGeocoder(zerolog.Nop())

	assert.Nil(t, g)
	assert.Nil(t, release)
}

func TestAddressStoreIsSharedBetweenSessions(t *testing.T) {
	store := memoryStore{}
	first := &countingGeocoder{address: "1 Main St"}
	second := &countingGeocoder{address: "elsewhere"}

	g1, _ := NewBuilder(testAddress, "token", "ch").WithGeocoder(first).WithAddressStore(store).buildGeocoder(zerolog.Nop())
	g2, _ := NewBuilder(testAddress, "token", "ch").WithGeocoder(second).WithAddressStore(store).buildGeocoder(zerolog.Nop())

	addr, err := g1.ReverseGeocode(context.Background(), 40.7128, -74.006)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr)

	addr, err = g2.ReverseGeocode(context.Background(), 40.7128, -74.006)
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr)
	assert.Equal(t, 1, first.calls)
	assert.Zero(t, second.calls)
	assert.Equal(t, "1 Main St", store[location.CacheKey(40.7128, -74.006)])
}

func TestRedisAddressCacheIsOwnedBySession(t *testing.T) {
	cfg := config.DefaultRedisConfig()
	cfg.Addr = "127.0.0.1:1"
	b := NewBuilder(testAddress, "token", "ch").
		WithGeocoder(&countingGeocoder{}).
		WithRedisAddressCache(cfg)

	g, release := b.buildGeocoder(zerolog.Nop())
	require.NotNil(t, release)
	assert.IsType(t, &location.CachingGeocoder{}, g)
	assert.NoError(t, release())
}
