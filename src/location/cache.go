package location

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// AddressStore persists reverse geocode results so that several sessions
// or processes can share them.
type AddressStore interface {
	// Get returns the address stored under key. ok is false on a miss.
	Get(ctx context.Context, key string) (address string, ok bool, err error)
	Set(ctx context.Context, key, address string) error
}

// CachingGeocoder consults an AddressStore before calling the wrapped
// geocoder. Store failures are logged and never fail a lookup.
type CachingGeocoder struct {
	next   Geocoder
	store  AddressStore
	logger zerolog.Logger
}

// NewCachingGeocoder wraps next with store.
func NewCachingGeocoder(next Geocoder, store AddressStore, logger zerolog.Logger) *CachingGeocoder {
	return &CachingGeocoder{
		next:   next,
		store:  store,
		logger: logger.With().Str("component", "geocode-cache").Logger(),
	}
}

// CacheKey identifies a coordinate to roughly one meter.
func CacheKey(latitude, longitude float64) string {
	return fmt.Sprintf("%.5f,%.5f", latitude, longitude)
}

// ReverseGeocode returns a stored address or looks one up and stores it.
func (g *CachingGeocoder) ReverseGeocode(ctx context.Context, latitude, longitude float64) (string, error) {
	key := CacheKey(latitude, longitude)

	address, ok, err := g.store.Get(ctx, key)
	switch {
	case err != nil:
		g.logger.Warn().Err(err).Str("key", key).Msg("address store read failed")
	case ok:
		g.logger.Debug().Str("key", key).Msg("address store hit")
		return address, nil
	}

	address, err = g.next.ReverseGeocode(ctx, latitude, longitude)
	if err != nil {
		return "", err
	}
	if address != "" {
		if err := g.store.Set(ctx, key, address); err != nil {
			g.logger.Warn().Err(err).Str("key", key).Msg("address store write failed")
		}
	}
	return address, nil
}
