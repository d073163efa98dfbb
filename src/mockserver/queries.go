package mockserver

import (
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/types"
)

// OnConnection registers a callback for new connections.
func (s *Server) OnConnection(cb func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, cb)
}

// OnDisconnection registers a callback for disconnections.
func (s *Server) OnDisconnection(cb func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconn = append(s.onDisconn, cb)
}

// ConnectedClients returns a list of connected client IDs.
func (s *Server) ConnectedClients() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.clients))
	for id := range s.clients {
		ids = append(ids, id)
	}
	return ids
}

// ClientInfo returns info for a connected client, or nil.
func (s *Server) ClientInfo(clientID string) *ClientInfo {
	s.mu.RLock()
	client, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	info := client.Info()
	return &info
}

// Channels returns channel names with their logged-on client counts.
func (s *Server) Channels() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]int, len(s.channels))
	for ch, subs := range s.channels {
		result[ch] = len(subs)
	}
	return result
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Push sends an event to every client in channel.
func (s *Server) Push(channel, event string, payload types.Payload) {
	msg := payload.Clone()
	msg[command.KeyCommand] = event
	s.post(func() {
		for _, m := range s.members(channel) {
			m.sendJSON(msg)
		}
	})
}

// PushFrame sends a binary frame to every client in channel.
func (s *Server) PushFrame(channel string, kind byte, id, tag uint32, payload []byte) {
	s.post(func() {
		for _, m := range s.members(channel) {
			m.sendFrame(kind, id, tag, payload)
		}
	})
}

// Kick reports reason to the client as an on_error event and closes its
// connection. It returns false if the client is not connected.
func (s *Server) Kick(clientID, reason string) bool {
	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	s.post(func() {
		c.sendJSON(types.Payload{command.KeyCommand: command.EventOnError, command.KeyError: reason})
		c.closeAfterFlush()
	})
	return true
}
