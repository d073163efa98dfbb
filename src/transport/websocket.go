package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/rs/zerolog"
)

// DialFunc opens a WebSocket connection to url.
type DialFunc func(ctx context.Context, url string, timeout time.Duration) (Conn, error)

// Options tune a WebSocket transport. Zero values pick defaults.
type Options struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	// SendBuffer is the number of frames queued for the write pump.
	SendBuffer int
	Dial       DialFunc
}

const (
	defaultSendBuffer   = 256
	defaultWriteTimeout = 10 * time.Second
)

// WebSocketDialer returns a DialFunc that uses a copy of d with the
// request timeout as its handshake timeout.
func WebSocketDialer(d *websocket.Dialer) DialFunc {
	return func(ctx context.Context, u string, timeout time.Duration) (Conn, error) {
		dialer := *d
		if timeout > 0 {
			dialer.HandshakeTimeout = timeout
		}
		conn, _, err := dialer.DialContext(ctx, u, nil)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// DefaultDial dials with a proxy-aware dialer.
var DefaultDial = WebSocketDialer(&websocket.Dialer{
	Proxy:           http.ProxyFromEnvironment,
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
})

type outFrame struct {
	messageType int
	data        []byte
}

// WebSocket is the Transport used in production. Commands are JSON text
// frames tagged with a "seq" number; responses carrying the same seq are
// routed to the command's ack.
type WebSocket struct {
	exec   dispatch.Executor
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	events  Events
	conn    Conn
	seq     uint32
	pending map[uint32]SendAck
	send    chan outFrame
	done    chan struct{}
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// NewWebSocket creates an unconnected transport whose events are posted to
// exec.
func NewWebSocket(exec dispatch.Executor, opts Options, logger zerolog.Logger) *WebSocket {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDial
	}
	return &WebSocket{
		exec: exec,
		opts: opts,
		logger: logger.With().
			Str("component", "transport").
			Str("connection_id", uuid.New().String()).
			Logger(),
		pending: make(map[uint32]SendAck),
		send:    make(chan outFrame, opts.SendBuffer),
		done:    make(chan struct{}),
	}
}

// NewWebSocketFactory returns a Factory producing WebSocket transports.
func NewWebSocketFactory(exec dispatch.Executor, opts Options, logger zerolog.Logger) Factory {
	return FactoryFunc(func() Transport {
		return NewWebSocket(exec, opts, logger)
	})
}

// Connect validates address and dials in the background.
func (t *WebSocket) Connect(events Events, address string, requestTimeout time.Duration) error {
	target, err := normalizeAddress(address)
	if err != nil {
		return &types.ConnectError{Kind: types.ConnectFailed, Err: err}
	}

	t.mu.Lock()
	if t.started || t.closed {
		t.mu.Unlock()
		return &types.ConnectError{Kind: types.ConnectFailed, Err: fmt.Errorf("transport already used")}
	}
	t.started = true
	t.events = events
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	t.logger.Info().Str("address", target).Msg("connecting")
	go t.dial(ctx, target, requestTimeout)
	return nil
}

func (t *WebSocket) dial(ctx context.Context, target string, timeout time.Duration) {
	conn, err := t.opts.Dial(ctx, target, timeout)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		t.closed = true
		events := t.events
		t.mu.Unlock()
		t.logger.Warn().Err(err).Msg("connect failed")
		t.exec.Post(events.OnConnectFailed)
		return
	}
	t.conn = conn
	events := t.events
	t.mu.Unlock()

	t.logger.Info().Msg("connected")
	t.exec.Post(events.OnConnectSucceeded)
	go t.writePump(conn)
	go t.readPump(conn)
}

// Disconnect closes the connection quietly.
func (t *WebSocket) Disconnect() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	conn := t.conn
	t.pending = make(map[uint32]SendAck)
	if t.cancel != nil {
		t.cancel()
	}
	close(t.done)
	t.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	t.logger.Info().Msg("disconnected")
}

// Send writes a command frame.
func (t *WebSocket) Send(command string, body types.Payload, ack SendAck) {
	envelope := body.Clone()
	envelope["command"] = command

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		t.logger.Debug().Str("command", command).Msg("send on closed transport")
		return
	}
	t.seq++
	seq := t.seq
	envelope["seq"] = seq
	if ack != nil {
		t.pending[seq] = ack
	}
	t.mu.Unlock()

	data, err := json.Marshal(envelope)
	if err != nil {
		t.logger.Error().Err(err).Str("command", command).Msg("encode command")
		t.dropPending(seq)
		return
	}
	if !t.enqueue(outFrame{messageType: websocket.TextMessage, data: data}) {
		t.dropPending(seq)
	}
}

// SendVoiceStreamData writes a voice packet. Client packets carry packet
// id 0.
func (t *WebSocket) SendVoiceStreamData(streamID uint32, data []byte) {
	t.enqueue(outFrame{messageType: websocket.BinaryMessage, data: EncodeFrame(FrameVoice, streamID, 0, data)})
}

// SendImageData writes one image chunk.
func (t *WebSocket) SendImageData(imageID, tag uint32, data []byte) {
	t.enqueue(outFrame{messageType: websocket.BinaryMessage, data: EncodeFrame(FrameImage, imageID, tag, data)})
}

func (t *WebSocket) enqueue(f outFrame) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	select {
	case t.send <- f:
		return true
	default:
		t.logger.Warn().Int("bytes", len(f.data)).Msg("send buffer full, dropping")
		return false
	}
}

func (t *WebSocket) dropPending(seq uint32) {
	t.mu.Lock()
	delete(t.pending, seq)
	t.mu.Unlock()
}

// readPump reads frames until the connection fails and posts each one to
// the executor in arrival order.
func (t *WebSocket) readPump(conn Conn) {
	defer t.connectionLost(conn)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			t.logger.Debug().Err(err).Msg("read failed")
			return
		}
		switch messageType {
		case websocket.TextMessage:
			t.handleText(data)
		case websocket.BinaryMessage:
			t.handleBinary(data)
		}
	}
}

func (t *WebSocket) handleText(data []byte) {
	payload, err := types.DecodePayload(data)
	if err != nil {
		t.logger.Warn().Err(err).Msg("dropping malformed text frame")
		return
	}

	t.mu.Lock()
	events := t.events
	t.mu.Unlock()

	if command := payload.String("command", ""); command != "" {
		var ack ReadAck
		if payload.Has("seq") {
			seq := payload.Int("seq", 0)
			ack = func(response types.Payload) {
				reply := response.Clone()
				reply["seq"] = seq
				data, err := json.Marshal(reply)
				if err != nil {
					t.logger.Error().Err(err).Msg("encode reply")
					return
				}
				t.enqueue(outFrame{messageType: websocket.TextMessage, data: data})
			}
		}
		t.logger.Debug().Str("command", command).Msg("incoming command")
		t.exec.Post(func() { events.OnIncomingCommand(command, payload, ack) })
		return
	}

	if !payload.Has("seq") {
		t.logger.Debug().Msg("dropping uncorrelated response")
		return
	}
	seq := uint32(payload.Int("seq", 0))
	t.mu.Lock()
	ack, ok := t.pending[seq]
	delete(t.pending, seq)
	t.mu.Unlock()
	if !ok {
		t.logger.Debug().Uint32("seq", seq).Msg("no pending request for response")
		return
	}
	t.exec.Post(func() { ack(payload) })
}

func (t *WebSocket) handleBinary(data []byte) {
	frame, err := DecodeFrame(data)
	if err != nil {
		t.logger.Warn().Err(err).Msg("dropping binary frame")
		return
	}

	t.mu.Lock()
	events := t.events
	t.mu.Unlock()

	switch frame.Kind {
	case FrameImage:
		t.exec.Post(func() { events.OnIncomingImageData(frame.ID, frame.Tag, frame.Payload) })
	case FrameVoice:
		t.exec.Post(func() { events.OnIncomingVoiceStreamData(frame.ID, frame.Tag, frame.Payload) })
	}
}

// connectionLost reports OnDisconnected unless Disconnect was called.
func (t *WebSocket) connectionLost(conn Conn) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.pending = make(map[uint32]SendAck)
	close(t.done)
	events := t.events
	t.mu.Unlock()

	conn.Close()
	t.logger.Info().Msg("connection lost")
	t.exec.Post(events.OnDisconnected)
}

// writePump writes queued frames in order and keeps the connection alive
// with pings.
func (t *WebSocket) writePump(conn Conn) {
	var ping <-chan time.Time
	if t.opts.PingInterval > 0 {
		ticker := time.NewTicker(t.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case f := <-t.send:
			if err := t.write(conn, f.messageType, f.data); err != nil {
				t.logger.Error().Err(err).Msg("write failed")
				conn.Close()
				return
			}
		case <-ping:
			if err := t.write(conn, websocket.PingMessage, nil); err != nil {
				t.logger.Error().Err(err).Msg("ping failed")
				conn.Close()
				return
			}
		case <-t.done:
			return
		}
	}
}

func (t *WebSocket) write(conn Conn, messageType int, data []byte) error {
	if d, ok := conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		d.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	}
	return conn.WriteMessage(messageType, data)
}

// normalizeAddress accepts ws, wss, http and https URLs and returns the
// WebSocket form.
func normalizeAddress(address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", fmt.Errorf("empty address")
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parse address: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("address %q has no host", address)
	}
	return u.String(), nil
}
