package voice

import (
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/rs/zerolog"
)

// Listener is told about stream lifecycle changes on the executor.
type Listener interface {
	OnOutgoingStreamStarted(s *OutgoingStream)
	OnOutgoingStreamFailed(s *OutgoingStream, err types.VoiceStreamError)
	OnIncomingStreamStarted(s *IncomingStream)
	OnStreamStopped(s Stream)
}

// Manager tracks the active voice streams of a session. Methods other than
// ActiveStreams must be called on exec.
type Manager struct {
	exec           dispatch.Executor
	listener       Listener
	requestTimeout time.Duration
	logger         zerolog.Logger

	incoming map[uint32]*IncomingStream
	outgoing []*OutgoingStream
	active   atomic.Pointer[[]Stream]
}

// NewManager creates a Manager.
func NewManager(listener Listener, exec dispatch.Executor, requestTimeout time.Duration, logger zerolog.Logger) *Manager {
	m := &Manager{
		exec:           exec,
		listener:       listener,
		requestTimeout: requestTimeout,
		logger:         logger.With().Str("component", "voice").Logger(),
		incoming:       make(map[uint32]*IncomingStream),
	}
	m.publish()
	return m
}

// ActiveStreams returns a snapshot of the running streams. It is safe to
// call from any goroutine.
func (m *Manager) ActiveStreams() []Stream {
	return *m.active.Load()
}

// NewOutgoing creates an outgoing stream in the starting state. It is safe
// to call from any goroutine; the stream does nothing until StartOutgoing.
func (m *Manager) NewOutgoing(recipient string, cfg OutgoingConfig) *OutgoingStream {
	s := &OutgoingStream{manager: m, config: cfg, recipient: recipient}
	s.set(StateStarting)
	return s
}

// StartOutgoing asks the server for a stream and starts the source once it
// is granted. A nil t fails the stream.
func (m *Manager) StartOutgoing(t transport.Transport, s *OutgoingStream) {
	if s.State() != StateStarting {
		return
	}
	if t == nil {
		s.set(StateError)
		m.listener.OnOutgoingStreamFailed(s, types.VoiceFailedToStart)
		return
	}
	s.transport = t
	m.outgoing = append(m.outgoing, s)
	m.publish()

	cmd := &command.StartStreamCommand{
		Codec:          s.config.Codec,
		CodecHeader:    s.config.CodecHeader,
		PacketDuration: s.config.PacketDuration,
		Recipient:      s.recipient,
		OnSuccess:      func(id uint32) { m.outgoingStarted(t, s, id) },
		OnFailure: func(err types.VoiceStreamError) {
			if s.State() != StateStarting {
				return
			}
			s.set(StateError)
			m.removeOutgoing(s)
			m.logger.Warn().Err(err).Msg("outgoing stream failed")
			m.listener.OnOutgoingStreamFailed(s, err)
		},
	}
	s.closeStart = command.Send(m.exec, t, cmd, m.requestTimeout)
}

func (m *Manager) outgoingStarted(t transport.Transport, s *OutgoingStream, id uint32) {
	if s.State() != StateStarting {
		return
	}
	s.id.Store(id)
	s.set(StateRunning)
	m.publish()
	m.logger.Info().Uint32("stream_id", id).Msg("outgoing stream started")
	m.listener.OnOutgoingStreamStarted(s)

	if s.stopRequested {
		m.stopOutgoing(s)
		return
	}
	if s.config.Source == nil {
		return
	}
	err := s.config.Source.Start(func(packet []byte) {
		m.exec.Post(func() {
			if s.State() == StateRunning {
				t.SendVoiceStreamData(id, packet)
			}
		})
	})
	if err != nil {
		m.logger.Error().Err(err).Uint32("stream_id", id).Msg("voice source failed to start")
		m.stopOutgoing(s)
	}
}

func (m *Manager) stopOutgoing(s *OutgoingStream) {
	switch s.State() {
	case StateStarting:
		s.stopRequested = true
		return
	case StateRunning:
	default:
		return
	}
	s.set(StateStopping)
	if s.config.Source != nil {
		s.config.Source.Stop()
	}
	command.Send(m.exec, s.transport, &command.StopStreamCommand{StreamID: s.ID()}, 0)
	s.set(StateStopped)
	m.removeOutgoing(s)
	m.listener.OnStreamStopped(s)
}

// StartIncoming registers a stream announced by the server. A nil cfg
// discards the audio.
func (m *Manager) StartIncoming(id uint32, info IncomingInfo, codec string, header []byte, packetDuration int, cfg *IncomingConfig) *IncomingStream {
	if old, ok := m.incoming[id]; ok {
		m.finishIncoming(old)
	}
	s := &IncomingStream{
		Info:           info,
		Codec:          codec,
		CodecHeader:    header,
		PacketDuration: packetDuration,
	}
	if cfg != nil {
		s.receiver = cfg.Receiver
	}
	s.id.Store(id)
	s.set(StateRunning)
	m.incoming[id] = s
	m.publish()

	m.logger.Info().Uint32("stream_id", id).Str("from", info.Sender).Msg("incoming stream started")
	m.listener.OnIncomingStreamStarted(s)
	return s
}

// OnData routes a packet to its stream. Packets for unknown streams are
// dropped.
func (m *Manager) OnData(id, packetID uint32, data []byte) {
	s, ok := m.incoming[id]
	if !ok {
		m.logger.Debug().Uint32("stream_id", id).Msg("data for unknown stream, dropping")
		return
	}
	if s.receiver != nil {
		s.receiver.Receive(packetID, data)
	}
}

// StopIncoming finishes the stream with id. It reports whether one was
// found.
func (m *Manager) StopIncoming(id uint32) bool {
	s, ok := m.incoming[id]
	if !ok {
		return false
	}
	m.finishIncoming(s)
	return true
}

func (m *Manager) finishIncoming(s *IncomingStream) {
	delete(m.incoming, s.ID())
	s.set(StateStopped)
	if s.receiver != nil {
		s.receiver.Close()
	}
	m.publish()
	m.listener.OnStreamStopped(s)
}

// Reset stops every stream. Used when the connection goes away.
func (m *Manager) Reset() {
	for _, s := range m.incoming {
		m.finishIncoming(s)
	}
	for _, s := range append([]*OutgoingStream(nil), m.outgoing...) {
		if s.closeStart != nil {
			s.closeStart()
		}
		if s.State() == StateRunning && s.config.Source != nil {
			s.config.Source.Stop()
		}
		s.set(StateStopped)
		m.removeOutgoing(s)
		m.listener.OnStreamStopped(s)
	}
}

func (m *Manager) removeOutgoing(s *OutgoingStream) {
	for i, o := range m.outgoing {
		if o == s {
			m.outgoing = append(m.outgoing[:i], m.outgoing[i+1:]...)
			break
		}
	}
	m.publish()
}

func (m *Manager) publish() {
	streams := make([]Stream, 0, len(m.incoming)+len(m.outgoing))
	for _, s := range m.outgoing {
		streams = append(streams, s)
	}
	for _, s := range m.incoming {
		streams = append(streams, s)
	}
	m.active.Store(&streams)
}
