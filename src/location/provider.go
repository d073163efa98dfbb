package location

import (
	"context"
	"time"
)

// Accuracy is the precision a caller asks of a location provider.
type Accuracy int

const (
	AccuracyAny Accuracy = iota
	AccuracyFine
	AccuracyCoarse
)

// Criteria selects a location provider.
type Criteria struct {
	Accuracy         Accuracy
	CostAllowed      bool
	AltitudeRequired bool
	SpeedRequired    bool
	BearingRequired  bool
}

// Normalize clears requirements for values that are never sent to the
// channel.
func (c Criteria) Normalize() Criteria {
	c.AltitudeRequired = false
	c.SpeedRequired = false
	c.BearingRequired = false
	return c
}

// Fix is a raw position from a provider.
type Fix struct {
	Latitude  float64
	Longitude float64
	// Accuracy radius in meters.
	Accuracy float64
	Time     time.Time
}

// FixHandler receives the outcome of a single fix request. Either method
// may be called from any goroutine, and only one is called.
type FixHandler interface {
	// OnFix delivers the fix, or nil when the provider has none.
	OnFix(fix *Fix)
	// OnProviderDisabled reports that the provider went away mid-request.
	OnProviderDisabled()
}

// Provider is the platform's source of location fixes.
type Provider interface {
	// BestProvider names the best enabled provider for c, or "" if none.
	BestProvider(c Criteria) string
	LastKnownFix(provider string) (Fix, bool)
	RequestSingleFix(provider string, handler FixHandler)
}

// Geocoder turns coordinates into a readable address. An empty result with
// a nil error means nothing was found.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, latitude, longitude float64) (string, error)
}
