package mockserver

import (
	"sync"

	"github.com/orchestra-mcp/channel/config"
	"github.com/rs/zerolog"
)

// relayImage is an image announced by send_image whose frames are still
// being relayed.
type relayImage struct {
	sender    *Client
	channel   string
	recipient string
}

// relayStream is a running voice stream.
type relayStream struct {
	sender    *Client
	channel   string
	recipient string
	packets   uint32
}

// Server is an in-process channel server. It speaks the client protocol
// well enough to exercise a session end to end: logon, channel status,
// messages, images and voice are relayed between clients in the same
// channel.
type Server struct {
	cfg      *config.ServerConfig
	accounts map[string]string

	clients  map[string]*Client
	channels map[string]map[string]bool // channel -> set of clientIDs

	// Owned by Run.
	images        map[uint32]*relayImage
	streams       map[uint32]*relayStream
	refreshTokens map[string]bool
	nextID        uint32

	register   chan *Client
	unregister chan *Client
	incoming   chan inbound
	control    chan func()

	onConnect []func(string)
	onDisconn []func(string)

	mu       sync.RWMutex
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new Server.
func New(cfg *config.ServerConfig, logger zerolog.Logger) *Server {
	if cfg == nil {
		cfg = config.DefaultServerConfig()
	}
	return &Server{
		cfg:           cfg,
		accounts:      make(map[string]string),
		clients:       make(map[string]*Client),
		channels:      make(map[string]map[string]bool),
		images:        make(map[uint32]*relayImage),
		streams:       make(map[uint32]*relayStream),
		refreshTokens: make(map[string]bool),
		register:      make(chan *Client),
		unregister:    make(chan *Client),
		incoming:      make(chan inbound, 256),
		control:       make(chan func(), 16),
		logger:        logger.With().Str("component", "mockserver").Logger(),
		done:          make(chan struct{}),
	}
}

// AddAccount lets username log on with password.
func (s *Server) AddAccount(username, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[username] = password
}

// Run starts the server event loop. Call in a goroutine.
func (s *Server) Run() {
	for {
		select {
		case client := <-s.register:
			s.addClient(client)
		case client := <-s.unregister:
			s.removeClient(client)
		case in := <-s.incoming:
			s.handleInbound(in)
		case fn := <-s.control:
			fn()
		case <-s.done:
			return
		}
	}
}

// Stop halts the event loop and drops every connection.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.RLock()
		defer s.mu.RUnlock()
		for _, c := range s.clients {
			c.Close()
			c.conn.Close()
		}
	})
}

// Register queues a client for registration.
func (s *Server) Register(c *Client) {
	select {
	case s.register <- c:
	case <-s.done:
	}
}

// Unregister queues a client for removal.
func (s *Server) Unregister(c *Client) {
	select {
	case s.unregister <- c:
	case <-s.done:
	}
}

func (s *Server) dispatch(in inbound) {
	select {
	case s.incoming <- in:
	case <-s.done:
	}
}

// post runs fn on the event loop.
func (s *Server) post(fn func()) {
	select {
	case s.control <- fn:
	case <-s.done:
	}
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	s.clients[c.ID] = c
	callbacks := s.onConnect
	s.mu.Unlock()

	s.logger.Info().Str("client_id", c.ID).Msg("client registered")

	for _, cb := range callbacks {
		cb(c.ID)
	}
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	if _, ok := s.clients[c.ID]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.ID)

	channel, _, loggedOn := c.identity()
	if subs, ok := s.channels[channel]; ok {
		delete(subs, c.ID)
		if len(subs) == 0 {
			delete(s.channels, channel)
		}
	}
	callbacks := s.onDisconn
	s.mu.Unlock()

	c.Close()
	s.logger.Info().Str("client_id", c.ID).Msg("client unregistered")

	for id, img := range s.images {
		if img.sender == c {
			delete(s.images, id)
		}
	}
	for id, st := range s.streams {
		if st.sender == c {
			s.endStream(id, st)
		}
	}
	if loggedOn {
		s.broadcastStatus(channel)
	}

	for _, cb := range callbacks {
		cb(c.ID)
	}
}

func (s *Server) subscribe(channel string, c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channels[channel] == nil {
		s.channels[channel] = make(map[string]bool)
	}
	s.channels[channel][c.ID] = true
}

// members returns the clients in channel.
func (s *Server) members(channel string) []*Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.channels[channel]
	out := make([]*Client, 0, len(subs))
	for id := range subs {
		if c, ok := s.clients[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (s *Server) newID() uint32 {
	s.nextID++
	return s.nextID
}
