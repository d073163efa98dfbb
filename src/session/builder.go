package session

import (
	"math/rand"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/images"
	"github.com/orchestra-mcp/channel/src/location"
	"github.com/orchestra-mcp/channel/src/platform"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/rs/zerolog"
)

// Builder collects the settings of a Session.
type Builder struct {
	address   string
	authToken string
	channel   string
	username  string
	password  string

	config             *config.SessionConfig
	logger             zerolog.Logger
	listener           Listener
	clock              clock.Clock
	random             func() float64
	guard              *platform.Guard
	transportFactory   func(dispatch.Executor) transport.Factory
	codec              images.Codec
	locationProvider   location.Provider
	geocoder           location.Geocoder
	addressStore       location.AddressStore
	redisConfig        *config.RedisConfig
	locationPermission func() bool
}

// NewBuilder starts a Session for channel on the server at address.
func NewBuilder(address, authToken, channel string) *Builder {
	return &Builder{
		address:   address,
		authToken: authToken,
		channel:   channel,
		config:    config.DefaultConfig(),
		logger:    zerolog.Nop(),
	}
}

// WithCredentials sets the account to log on with. Without them the
// session is listen-only.
func (b *Builder) WithCredentials(username, password string) *Builder {
	b.username = username
	b.password = password
	return b
}

func (b *Builder) WithConfig(cfg *config.SessionConfig) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithListener(l Listener) *Builder {
	b.listener = l
	return b
}

func (b *Builder) WithClock(c clock.Clock) *Builder {
	b.clock = c
	return b
}

// WithRandom overrides the source of reconnect jitter, a value in [0, 1).
func (b *Builder) WithRandom(random func() float64) *Builder {
	b.random = random
	return b
}

// WithPlatformGuard overrides the process-wide initialization guard.
func (b *Builder) WithPlatformGuard(g *platform.Guard) *Builder {
	b.guard = g
	return b
}

// WithTransportFactory replaces the WebSocket transport. newFactory is
// given the session's executor, on which transports must deliver events.
func (b *Builder) WithTransportFactory(newFactory func(dispatch.Executor) transport.Factory) *Builder {
	b.transportFactory = newFactory
	return b
}

func (b *Builder) WithImageCodec(codec images.Codec) *Builder {
	b.codec = codec
	return b
}

// WithLocationProvider enables SendLocation.
func (b *Builder) WithLocationProvider(p location.Provider) *Builder {
	b.locationProvider = p
	return b
}

// WithGeocoder attaches addresses to sent locations.
func (b *Builder) WithGeocoder(g location.Geocoder) *Builder {
	b.geocoder = g
	return b
}

// WithAddressStore caches geocoder results in store, which may be shared
// with other sessions. It has no effect without a geocoder.
func (b *Builder) WithAddressStore(store location.AddressStore) *Builder {
	b.addressStore = store
	return b
}

// WithRedisAddressCache is WithAddressStore backed by Redis. The session
// owns the connection and closes it on Close.
func (b *Builder) WithRedisAddressCache(cfg *config.RedisConfig) *Builder {
	b.redisConfig = cfg
	return b
}

// WithLocationPermission installs the check SendLocation performs first.
// By default permission is granted.
func (b *Builder) WithLocationPermission(granted func() bool) *Builder {
	b.locationPermission = granted
	return b
}

// Build creates the Session and starts its executor.
func (b *Builder) Build() *Session {
	cfg := b.config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if b.listener == nil {
		b.listener = BaseListener{}
	}
	if b.clock == nil {
		b.clock = clock.Real()
	}
	if b.random == nil {
		b.random = rand.Float64
	}
	if b.guard == nil {
		b.guard = platform.Default()
	}
	if b.locationPermission == nil {
		b.locationPermission = func() bool { return true }
	}
	if b.transportFactory == nil {
		opts := transport.Options{
			PingInterval: cfg.PingInterval,
			WriteTimeout: cfg.WriteTimeout,
			SendBuffer:   cfg.SendBuffer,
		}
		logger := b.logger
		b.transportFactory = func(exec dispatch.Executor) transport.Factory {
			return transport.NewWebSocketFactory(exec, opts, logger)
		}
	}
	return newSession(b, cfg)
}

// buildGeocoder wraps the geocoder with the address store, if any. release
// closes a store the session created itself.
func (b *Builder) buildGeocoder(logger zerolog.Logger) (g location.Geocoder, release func() error) {
	if b.geocoder == nil {
		return nil, nil
	}
	store := b.addressStore
	if store == nil && b.redisConfig != nil {
		redisStore := location.NewRedisAddressStore(b.redisConfig, logger)
		store, release = redisStore, redisStore.Close
	}
	if store == nil {
		return b.geocoder, nil
	}
	return location.NewCachingGeocoder(b.geocoder, store, logger), release
}
