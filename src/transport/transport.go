package transport

import (
	"time"

	"github.com/orchestra-mcp/channel/src/types"
)

// SendAck receives the server's response to a command. It is called at
// most once, on the session's executor.
type SendAck func(response types.Payload)

// ReadAck answers an inbound command that asked for a response.
type ReadAck func(response types.Payload)

// Events receives everything a transport observes. All methods are called
// on the executor the transport was created with.
type Events interface {
	OnConnectSucceeded()
	OnConnectFailed()
	OnDisconnected()
	// OnIncomingCommand delivers a named command. ack is nil unless the
	// server expects a reply.
	OnIncomingCommand(command string, payload types.Payload, ack ReadAck)
	OnIncomingVoiceStreamData(streamID, packetID uint32, data []byte)
	OnIncomingImageData(imageID, tag uint32, data []byte)
}

// Transport owns one physical connection to the channel server.
type Transport interface {
	// Connect starts connecting and returns a *types.ConnectError if the
	// attempt cannot even be started. The outcome is reported through
	// events.
	Connect(events Events, address string, requestTimeout time.Duration) error

	// Disconnect closes the connection without reporting OnDisconnected.
	// Pending acks are dropped.
	Disconnect()

	// Send writes one command frame. ack, when non-nil, receives the
	// correlated response, or nothing if the connection drops first.
	Send(command string, body types.Payload, ack SendAck)

	SendVoiceStreamData(streamID uint32, data []byte)
	SendImageData(imageID, tag uint32, data []byte)
}

// Factory creates a fresh Transport for each connect cycle.
type Factory interface {
	New() Transport
}

// FactoryFunc adapts a func to Factory.
type FactoryFunc func() Transport

// New calls f.
func (f FactoryFunc) New() Transport { return f() }

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}
