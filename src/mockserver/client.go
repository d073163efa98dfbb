package mockserver

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
)

// ClientInfo describes a connected client.
type ClientInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Channel     string    `json:"channel,omitempty"`
	Username    string    `json:"username,omitempty"`
}

type outFrame struct {
	messageType int
	data        []byte
}

// inbound is one frame read from a client. Exactly one of payload and
// frame is set.
type inbound struct {
	client  *Client
	payload types.Payload
	frame   *transport.Frame
}

// Client wraps a WebSocket connection and manages message flow.
type Client struct {
	ID          string
	conn        transport.Conn
	server      *Server
	send        chan outFrame
	connectedAt time.Time
	mu          sync.RWMutex
	channel     string
	username    string
	done        chan struct{}
	closed      bool
}

// NewClient creates a new client wrapper around conn.
func NewClient(id string, conn transport.Conn, s *Server) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		server:      s,
		send:        make(chan outFrame, 256),
		connectedAt: time.Now(),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this client.
func (c *Client) Info() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		ID:          c.ID,
		ConnectedAt: c.connectedAt,
		Channel:     c.channel,
		Username:    c.username,
	}
}

func (c *Client) logon(channel, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channel = channel
	c.username = username
}

func (c *Client) identity() (channel, username string, loggedOn bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel, c.username, c.channel != ""
}

// Serve runs both pumps and returns once both have exited. The connection
// must stay valid until Serve returns.
func (c *Client) Serve() {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.WritePump()
	}()
	c.ReadPump()
	c.Close()
	<-writerDone
}

// ReadPump reads frames from the WebSocket and routes them to the server.
func (c *Client) ReadPump() {
	defer func() {
		c.server.Unregister(c)
		c.conn.Close()
	}()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		switch messageType {
		case websocket.TextMessage:
			p, err := types.DecodePayload(data)
			if err != nil {
				c.server.logger.Warn().Err(err).Str("client_id", c.ID).Msg("malformed command")
				continue
			}
			c.server.dispatch(inbound{client: c, payload: p})
		case websocket.BinaryMessage:
			f, err := transport.DecodeFrame(data)
			if err != nil {
				c.server.logger.Warn().Err(err).Str("client_id", c.ID).Msg("malformed frame")
				continue
			}
			c.server.dispatch(inbound{client: c, frame: &f})
		}
	}
}

// WritePump writes queued frames to the WebSocket.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for {
		select {
		case f, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteMessage(f.messageType, f.data); err != nil {
				return
			}
			if f.messageType == websocket.CloseMessage {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Close signals the client to stop its pumps.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}

func (c *Client) enqueue(f outFrame) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- f:
		return true
	default:
		c.server.logger.Warn().Str("client_id", c.ID).Msg("send buffer full, dropping")
		return false
	}
}

func (c *Client) sendJSON(p types.Payload) bool {
	data, err := json.Marshal(p)
	if err != nil {
		c.server.logger.Error().Err(err).Str("client_id", c.ID).Msg("encode message")
		return false
	}
	return c.enqueue(outFrame{messageType: websocket.TextMessage, data: data})
}

// closeAfterFlush closes the connection once everything queued before it
// has been written.
func (c *Client) closeAfterFlush() {
	c.enqueue(outFrame{
		messageType: websocket.CloseMessage,
		data:        websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	})
}

func (c *Client) sendFrame(kind byte, id, tag uint32, payload []byte) bool {
	return c.enqueue(outFrame{messageType: websocket.BinaryMessage, data: transport.EncodeFrame(kind, id, tag, payload)})
}
