package location

import (
	"context"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/rs/zerolog"
)

// SentFunc is called once per SendLocation with the location that was sent,
// or nil and a *types.SendLocationError.
type SentFunc func(loc *types.Location, err error)

// Manager acquires, reverse geocodes and sends the user's location. Its
// methods must be called on exec; done callbacks run there too.
type Manager struct {
	provider Provider
	geocoder Geocoder
	exec     dispatch.Executor
	pool     dispatch.Worker
	clock    clock.Clock
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	lastGeocodedFix *Fix
	lastGeocoded    types.Location
}

// NewManager creates a Manager. A nil geocoder sends bare coordinates.
func NewManager(provider Provider, geocoder Geocoder, exec dispatch.Executor, pool dispatch.Worker, c clock.Clock, logger zerolog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		provider: provider,
		geocoder: geocoder,
		exec:     exec,
		pool:     pool,
		clock:    c,
		logger:   logger.With().Str("component", "location").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SendLocation finds the current location matching criteria and sends it
// over t. done may be nil.
func (m *Manager) SendLocation(t transport.Transport, criteria Criteria, recipient string, done SentFunc) {
	if done == nil {
		done = func(*types.Location, error) {}
	}
	if m.provider == nil {
		done(nil, &types.SendLocationError{Message: types.NoProvider})
		return
	}
	name := m.provider.BestProvider(criteria)
	if name == "" {
		done(nil, &types.SendLocationError{Message: types.NoProvider})
		return
	}

	if last, ok := m.provider.LastKnownFix(name); ok && m.clock.Now().Sub(last.Time) <= config.LastLocationMaxAge {
		m.resolve(t, last, recipient, done)
		return
	}

	m.logger.Debug().Str("provider", name).Msg("requesting location fix")
	m.provider.RequestSingleFix(name, &fixRequest{
		manager:   m,
		transport: t,
		criteria:  criteria,
		recipient: recipient,
		done:      done,
	})
}

// Stop abandons geocode lookups in flight.
func (m *Manager) Stop() {
	m.cancel()
}

type fixRequest struct {
	manager   *Manager
	transport transport.Transport
	criteria  Criteria
	recipient string
	done      SentFunc
}

func (r *fixRequest) OnFix(fix *Fix) {
	r.manager.exec.Post(func() {
		if fix == nil {
			r.done(nil, &types.SendLocationError{Message: types.NoLocation})
			return
		}
		r.manager.resolve(r.transport, *fix, r.recipient, r.done)
	})
}

func (r *fixRequest) OnProviderDisabled() {
	r.manager.exec.Post(func() {
		r.manager.SendLocation(r.transport, r.criteria, r.recipient, r.done)
	})
}

// resolve attaches an address when one is available and sends.
func (m *Manager) resolve(t transport.Transport, fix Fix, recipient string, done SentFunc) {
	loc := types.Location{Latitude: fix.Latitude, Longitude: fix.Longitude, Accuracy: fix.Accuracy}
	if m.geocoder == nil {
		m.send(t, loc, recipient, done)
		return
	}

	if m.lastGeocodedFix != nil && Overlaps(fix, *m.lastGeocodedFix) {
		loc.Address = m.lastGeocoded.Address
		m.send(t, loc, recipient, done)
		return
	}

	m.pool.Go(func() {
		address, err := m.geocoder.ReverseGeocode(m.ctx, fix.Latitude, fix.Longitude)
		if err != nil {
			m.logger.Warn().Err(err).Msg("reverse geocode failed")
			address = ""
		}
		m.exec.Post(func() {
			if address != "" {
				loc.Address = address
				f := fix
				m.lastGeocodedFix = &f
				m.lastGeocoded = loc
			}
			m.send(t, loc, recipient, done)
		})
	})
}

func (m *Manager) send(t transport.Transport, loc types.Location, recipient string, done SentFunc) {
	command.Send(m.exec, t, &command.SendLocationCommand{Location: loc, Recipient: recipient}, 0)
	done(&loc, nil)
}
