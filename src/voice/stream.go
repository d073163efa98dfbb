package voice

import (
	"sync/atomic"

	"github.com/orchestra-mcp/channel/src/transport"
)

// StreamState is the lifecycle position of a voice stream.
type StreamState int32

const (
	StateStarting StreamState = iota
	StateRunning
	StateStopping
	StateStopped
	StateError
)

func (s StreamState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Stream is an incoming or outgoing voice message.
type Stream interface {
	ID() uint32
	State() StreamState
	Incoming() bool
}

// Source produces encoded audio packets for an outgoing stream. Start is
// called once the server accepts the stream; send may be called from any
// goroutine until Stop returns.
type Source interface {
	Start(send func(packet []byte)) error
	Stop()
}

// Receiver consumes the packets of an incoming stream. Calls are made on
// the session's executor.
type Receiver interface {
	Receive(packetID uint32, data []byte)
	Close()
}

// OutgoingConfig describes the encoder side of an outgoing stream.
type OutgoingConfig struct {
	Codec       string
	CodecHeader []byte
	// PacketDuration in milliseconds.
	PacketDuration int
	Source         Source
}

// IncomingInfo identifies who is talking before the stream is accepted.
type IncomingInfo struct {
	Sender  string
	Channel string
}

// IncomingConfig is returned by the application to receive a stream. A nil
// Receiver discards the audio.
type IncomingConfig struct {
	Receiver Receiver
}

type streamState struct {
	state atomic.Int32
	id    atomic.Uint32
}

func (s *streamState) ID() uint32         { return s.id.Load() }
func (s *streamState) State() StreamState { return StreamState(s.state.Load()) }

func (s *streamState) set(state StreamState) { s.state.Store(int32(state)) }

// OutgoingStream is the local user's voice message.
type OutgoingStream struct {
	streamState
	manager       *Manager
	transport     transport.Transport
	config        OutgoingConfig
	recipient     string
	stopRequested bool
	closeStart    func()
}

func (s *OutgoingStream) Incoming() bool { return false }

// Recipient is the user the stream is addressed to, empty for the whole
// channel.
func (s *OutgoingStream) Recipient() string { return s.recipient }

// Stop ends the stream. It may be called from any goroutine.
func (s *OutgoingStream) Stop() {
	s.manager.exec.Post(func() { s.manager.stopOutgoing(s) })
}

// IncomingStream is a voice message from another channel member.
type IncomingStream struct {
	streamState
	Info           IncomingInfo
	Codec          string
	CodecHeader    []byte
	PacketDuration int
	receiver       Receiver
}

func (s *IncomingStream) Incoming() bool { return true }
