package session

import (
	"errors"
	"image"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/images"
	"github.com/orchestra-mcp/channel/src/location"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/orchestra-mcp/channel/src/voice"
	"github.com/rs/zerolog"
)

// errNotConnected is reported to continuations when there is no transport.
const errNotConnected = "session is not connected"

// snapshot is the state readable from any goroutine.
type snapshot struct {
	state        State
	features     types.FeatureSet
	usersOnline  int
	hasTransport bool
}

// Session is one logical connection to a channel. Methods are safe to call
// from any goroutine, including from Listener callbacks. Work is carried
// out in order on the session's executor, where every callback is made.
type Session struct {
	address   string
	authToken string
	username  string
	password  string
	channel   string

	cfg                *config.SessionConfig
	logger             zerolog.Logger
	clock              clock.Clock
	random             func() float64
	loop               *dispatch.Loop
	pool               *dispatch.Pool
	factory            transport.Factory
	images             *images.Manager
	locations          *location.Manager
	voice              *voice.Manager
	locationPermission func() bool
	releaseStore       func() error
	initErr            error

	published atomic.Pointer[snapshot]

	// Owned by the loop.
	listener           Listener
	state              State
	features           types.FeatureSet
	usersOnline        int
	transport          transport.Transport
	events             *sessionEvents
	logon              *command.LogonCommand
	closeLogon         func()
	refreshToken       string
	nextReconnectDelay time.Duration
	cancelReconnect    func()
	criteria           location.Criteria
}

func newSession(b *Builder, cfg *config.SessionConfig) *Session {
	logger := b.logger.With().
		Str("component", "session").
		Str("session_id", uuid.New().String()).
		Str("channel", b.channel).
		Logger()

	s := &Session{
		address:            b.address,
		authToken:          b.authToken,
		username:           b.username,
		password:           b.password,
		channel:            b.channel,
		cfg:                cfg,
		logger:             logger,
		clock:              b.clock,
		random:             b.random,
		listener:           b.listener,
		locationPermission: b.locationPermission,
		nextReconnectDelay: config.ReconnectInitialDelay,
	}

	s.loop = dispatch.NewLoop(b.clock, logger)
	s.pool = dispatch.NewPool(cfg.Workers, logger)
	s.factory = b.transportFactory(s.loop)
	s.images = images.NewManager(imageEvents{s}, s.loop, s.pool, b.codec, b.clock, images.Options{
		RequestTimeout:  cfg.RequestTimeout,
		IncomingTimeout: cfg.IncomingImageTimeout,
	}, logger)
	geocoder, releaseStore := b.buildGeocoder(logger)
	s.releaseStore = releaseStore
	s.locations = location.NewManager(b.locationProvider, geocoder, s.loop, s.pool, b.clock, logger)
	s.voice = voice.NewManager(voiceEvents{s}, s.loop, cfg.RequestTimeout, logger)

	if err := b.guard.Ensure(logger); err != nil {
		s.initErr = err
		s.state = Error
	}
	s.publish()

	go s.loop.Run()
	return s
}

// Address is the server URL.
func (s *Session) Address() string { return s.address }

// Channel is the channel name.
func (s *Session) Channel() string { return s.channel }

// State returns the current connection state.
func (s *Session) State() State { return s.published.Load().state }

// ChannelFeatures returns what the connected channel supports. It is empty
// while disconnected.
func (s *Session) ChannelFeatures() types.FeatureSet { return s.published.Load().features }

// ChannelUsersOnline returns the channel's online count.
func (s *Session) ChannelUsersOnline() int { return s.published.Load().usersOnline }

// ActiveStreams returns the running voice streams.
func (s *Session) ActiveStreams() []voice.Stream { return s.voice.ActiveStreams() }

// SetListener replaces the listener.
func (s *Session) SetListener(l Listener) {
	if l == nil {
		l = BaseListener{}
	}
	s.loop.Post(func() { s.listener = l })
}

// Connect starts connecting and returns once the session is Connecting or
// the transport refused the address. It returns false, and nothing is
// reported, when the address or channel is empty or platform initialization
// failed. It also returns false after reporting OnConnectFailed when the
// transport fails synchronously. Any existing connection is closed first.
func (s *Session) Connect() bool {
	if s.address == "" || s.channel == "" || s.initErr != nil {
		return false
	}
	var started bool
	if !s.loop.Call(func() {
		s.disconnect()
		started = s.performConnect()
	}) {
		return false
	}
	return started
}

// Disconnect closes the connection and cancels any pending reconnect.
func (s *Session) Disconnect() {
	if s.initErr != nil {
		return
	}
	s.loop.Post(s.disconnect)
}

// Close disconnects and releases the executor and workers. The Session
// cannot be used afterwards.
func (s *Session) Close() {
	s.loop.Post(func() {
		if s.initErr == nil {
			s.disconnect()
		}
		s.images.Stop()
		s.locations.Stop()
		s.pool.Stop()
		if s.releaseStore != nil {
			if err := s.releaseStore(); err != nil {
				s.logger.Warn().Err(err).Msg("close address store")
			}
		}
		s.loop.Stop()
	})
}

// SendText sends a text message, to recipient only when it is not empty.
func (s *Session) SendText(text, recipient string) {
	if s.initErr != nil {
		return
	}
	s.loop.Post(func() {
		if s.transport == nil {
			return
		}
		command.Send(s.loop, s.transport, &command.SendTextCommand{Text: text, Recipient: recipient}, s.cfg.RequestTimeout)
	})
}

// SendImage resizes, compresses and sends img. Failures are reported to
// done, which may be nil, and to Listener.OnError.
func (s *Session) SendImage(img image.Image, recipient string, done images.SentFunc) {
	if s.initErr != nil {
		return
	}
	s.loop.Post(func() {
		finish := func(id uint32, err error) {
			if err != nil {
				s.listener.OnError(s, err)
			}
			if done != nil {
				done(id, err)
			}
		}
		if s.transport == nil {
			finish(0, &types.SendImageError{Message: errNotConnected})
			return
		}
		s.images.SendImage(img, s.transport, recipient, finish)
	})
}

// SetLocationCriteria sets how SendLocation picks a provider. Altitude,
// speed and bearing requirements are dropped.
func (s *Session) SetLocationCriteria(c location.Criteria) {
	c = c.Normalize()
	s.loop.Post(func() { s.criteria = c })
}

// SendLocation finds the user's location and sends it. It returns false
// when there is no connection or location permission is missing; done is
// not called then.
func (s *Session) SendLocation(recipient string, done location.SentFunc) bool {
	if s.initErr != nil || !s.published.Load().hasTransport {
		return false
	}
	if !s.locationPermission() {
		return false
	}
	s.loop.Post(func() {
		if s.transport == nil {
			if done != nil {
				done(nil, &types.SendLocationError{Message: errNotConnected})
			}
			return
		}
		s.locations.SendLocation(s.transport, s.criteria, recipient, done)
	})
	return true
}

// StartVoiceMessage starts an outgoing voice stream fed by cfg.Source. It
// returns nil when there is no connection.
func (s *Session) StartVoiceMessage(recipient string, cfg voice.OutgoingConfig) *voice.OutgoingStream {
	if s.initErr != nil || !s.published.Load().hasTransport {
		return nil
	}
	stream := s.voice.NewOutgoing(recipient, cfg)
	s.loop.Post(func() { s.voice.StartOutgoing(s.transport, stream) })
	return stream
}

func (s *Session) publish() {
	s.published.Store(&snapshot{
		state:        s.state,
		features:     s.features,
		usersOnline:  s.usersOnline,
		hasTransport: s.transport != nil,
	})
}

func (s *Session) setState(state State) {
	if s.state != state {
		s.logger.Info().Str("from", s.state.String()).Str("to", state.String()).Msg("state changed")
	}
	s.state = state
	s.publish()
}

func (s *Session) performConnect() bool {
	if s.transport != nil {
		return false
	}
	t := s.factory.New()
	events := &sessionEvents{session: s}
	if err := t.Connect(events, s.address, s.cfg.RequestTimeout); err != nil {
		s.logger.Warn().Err(err).Str("address", s.address).Msg("connect failed")
		var connectErr *types.ConnectError
		if !errors.As(err, &connectErr) {
			connectErr = &types.ConnectError{Kind: types.ConnectFailed, Err: err}
		}
		s.listener.OnConnectFailed(s, connectErr)
		return false
	}
	s.transport = t
	s.events = events
	s.setState(Connecting)
	s.listener.OnConnectStarted(s)
	return true
}

// disconnect tears down and reports OnDisconnected if there was a
// connection.
func (s *Session) disconnect() {
	if s.performDisconnect() {
		s.listener.OnDisconnected(s)
	}
}

// performDisconnect resets all connection state. It reports whether a
// transport was closed.
func (s *Session) performDisconnect() bool {
	t := s.transport
	s.transport = nil
	s.events = nil
	s.features = 0
	s.usersOnline = 0
	if s.cancelReconnect != nil {
		s.cancelReconnect()
		s.cancelReconnect = nil
	}
	if s.closeLogon != nil {
		s.closeLogon()
		s.closeLogon = nil
	}
	s.logon = nil
	s.voice.Reset()
	s.setState(Disconnected)

	if t == nil {
		return false
	}
	t.Disconnect()
	return true
}

func (s *Session) startLogon() {
	if s.transport == nil {
		return
	}
	cmd := &command.LogonCommand{
		AuthToken:    s.authToken,
		RefreshToken: s.refreshToken,
		Username:     s.username,
		Password:     s.password,
		Channel:      s.channel,
	}
	cmd.OnSuccess = func(refreshToken string) {
		if cmd != s.logon {
			return
		}
		s.logon = nil
		s.closeLogon = nil
		s.refreshToken = refreshToken
		s.setState(Connected)
		s.logger.Info().Bool("listen_only", s.username == "").Msg("logged on")
		s.listener.OnConnectSucceeded(s)
	}
	cmd.OnFailure = func(err *types.ConnectError) {
		if cmd != s.logon {
			return
		}
		s.logon = nil
		s.closeLogon = nil
		s.logger.Warn().Err(err).Msg("logon failed")
		s.performDisconnect()
		s.listener.OnConnectFailed(s, err)
	}
	s.logon = cmd
	s.closeLogon = command.Send(s.loop, s.transport, cmd, s.cfg.RequestTimeout)
}
