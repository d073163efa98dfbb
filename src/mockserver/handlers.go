package mockserver

import (
	"github.com/google/uuid"
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/images"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
)

const (
	errUnknownCommand   = "unknown command"
	errNotSupported     = "not supported"
	errStreamNotFound   = "stream not found"
	errMissingChannel   = "missing channel"
	channelStatusOnline = "online"
)

func (s *Server) handleInbound(in inbound) {
	if in.frame != nil {
		s.handleFrame(in.client, *in.frame)
		return
	}
	s.handleCommand(in.client, in.payload)
}

// reply answers a client command, echoing its seq.
func reply(c *Client, request, response types.Payload) {
	if request.Has(command.KeySeq) {
		response[command.KeySeq] = request[command.KeySeq]
	}
	c.sendJSON(response)
}

func fail(c *Client, request types.Payload, msg string) {
	reply(c, request, types.Payload{command.KeySuccess: false, command.KeyError: msg})
}

func (s *Server) handleCommand(c *Client, p types.Payload) {
	name := p.String(command.KeyCommand, "")
	if name == command.Logon {
		s.handleLogon(c, p)
		return
	}

	channel, username, loggedOn := c.identity()
	if !loggedOn {
		fail(c, p, command.ErrorNotAuthorized)
		return
	}

	switch name {
	case command.SendTextMessage:
		if !s.cfg.TextingSupported {
			fail(c, p, errNotSupported)
			return
		}
		s.relay(c, channel, p.String(command.KeyRecipient, ""), types.Payload{
			command.KeyCommand: command.EventOnTextMessage,
			command.KeyChannel: channel,
			command.KeyFrom:    username,
			command.KeyText:    p.String(command.KeyText, ""),
		})
		reply(c, p, types.Payload{command.KeySuccess: true})

	case command.SendLocation:
		if !s.cfg.LocationsSupported {
			fail(c, p, errNotSupported)
			return
		}
		event := types.Payload{
			command.KeyCommand:   command.EventOnLocation,
			command.KeyChannel:   channel,
			command.KeyFrom:      username,
			command.KeyLatitude:  p.Float(command.KeyLatitude, 0),
			command.KeyLongitude: p.Float(command.KeyLongitude, 0),
			command.KeyAccuracy:  p.Float(command.KeyAccuracy, 0),
		}
		if addr := p.String(command.KeyFormattedAddress, ""); addr != "" {
			event[command.KeyFormattedAddress] = addr
		}
		s.relay(c, channel, p.String(command.KeyRecipient, ""), event)
		reply(c, p, types.Payload{command.KeySuccess: true})

	case command.SendImage:
		s.handleSendImage(c, channel, username, p)

	case command.StartStream:
		s.handleStartStream(c, channel, username, p)

	case command.StopStream:
		id := uint32(p.Int(command.KeyStreamID, 0))
		st, ok := s.streams[id]
		if !ok || st.sender != c {
			fail(c, p, errStreamNotFound)
			return
		}
		s.endStream(id, st)
		reply(c, p, types.Payload{command.KeySuccess: true})

	default:
		s.logger.Debug().Str("client_id", c.ID).Str("command", name).Msg("unknown command")
		fail(c, p, errUnknownCommand)
	}
}

func (s *Server) handleLogon(c *Client, p types.Payload) {
	token := p.String(command.KeyAuthToken, "")
	authorized := s.cfg.AuthToken == "" || token == s.cfg.AuthToken ||
		s.refreshTokens[p.String(command.KeyRefreshToken, "")]
	if !authorized {
		fail(c, p, command.ErrorNotAuthorized)
		return
	}

	username := p.String(command.KeyUsername, "")
	if username != "" {
		s.mu.RLock()
		password, ok := s.accounts[username]
		s.mu.RUnlock()
		if !ok {
			fail(c, p, command.ErrorInvalidUsername)
			return
		}
		if password != p.String(command.KeyPassword, "") {
			fail(c, p, command.ErrorInvalidPassword)
			return
		}
	}

	channel := p.String(command.KeyChannel, "")
	if channel == "" {
		fail(c, p, errMissingChannel)
		return
	}

	c.logon(channel, username)
	s.subscribe(channel, c)

	refresh := uuid.New().String()
	s.refreshTokens[refresh] = true
	reply(c, p, types.Payload{command.KeySuccess: true, command.KeyRefreshToken: refresh})

	s.logger.Info().
		Str("client_id", c.ID).
		Str("channel", channel).
		Bool("listen_only", username == "").
		Msg("client logged on")
	s.broadcastStatus(channel)
}

func (s *Server) handleSendImage(c *Client, channel, username string, p types.Payload) {
	if !s.cfg.ImagesSupported {
		fail(c, p, errNotSupported)
		return
	}
	id := s.newID()
	recipient := p.String(command.KeyRecipient, "")
	s.images[id] = &relayImage{sender: c, channel: channel, recipient: recipient}
	reply(c, p, types.Payload{command.KeySuccess: true, command.KeyImageID: id})

	s.relay(c, channel, recipient, types.Payload{
		command.KeyCommand:         command.EventOnImage,
		command.KeyChannel:         channel,
		command.KeyFrom:            username,
		command.KeyMessageID:       id,
		command.KeyType:            p.String(command.KeyType, ""),
		command.KeyWidth:           p.Int(command.KeyWidth, 0),
		command.KeyHeight:          p.Int(command.KeyHeight, 0),
		command.KeyImageLength:     p.Int(command.KeyImageLength, 0),
		command.KeyThumbnailLength: p.Int(command.KeyThumbnailLength, 0),
	})
}

func (s *Server) handleStartStream(c *Client, channel, username string, p types.Payload) {
	if username == "" {
		fail(c, p, command.ErrorListenOnlyConnection)
		return
	}
	for _, st := range s.streams {
		if st.channel == channel {
			fail(c, p, command.ErrorBusy)
			return
		}
	}

	id := s.newID()
	recipient := p.String(command.KeyRecipient, "")
	s.streams[id] = &relayStream{sender: c, channel: channel, recipient: recipient}
	reply(c, p, types.Payload{command.KeySuccess: true, command.KeyStreamID: id})

	s.relay(c, channel, recipient, types.Payload{
		command.KeyCommand:        command.EventOnStreamStart,
		command.KeyChannel:        channel,
		command.KeyFrom:           username,
		command.KeyStreamID:       id,
		command.KeyCodec:          p.String(command.KeyCodec, ""),
		command.KeyCodecHeader:    p.String(command.KeyCodecHeader, ""),
		command.KeyPacketDuration: p.Int(command.KeyPacketDuration, 0),
	})
}

func (s *Server) endStream(id uint32, st *relayStream) {
	delete(s.streams, id)
	s.relay(st.sender, st.channel, st.recipient, types.Payload{
		command.KeyCommand:  command.EventOnStreamStop,
		command.KeyStreamID: id,
	})
}

// handleFrame relays a binary frame from the client that owns its image
// or stream. Voice packets are numbered per stream.
func (s *Server) handleFrame(c *Client, f transport.Frame) {
	switch f.Kind {
	case transport.FrameImage:
		img, ok := s.images[f.ID]
		if !ok || img.sender != c {
			s.logger.Warn().Str("client_id", c.ID).Uint32("image_id", f.ID).Msg("frame for unknown image")
			return
		}
		s.relayFrame(c, img.channel, img.recipient, f.Kind, f.ID, f.Tag, f.Payload)
		if f.Tag == images.TagImage {
			delete(s.images, f.ID)
		}
	case transport.FrameVoice:
		st, ok := s.streams[f.ID]
		if !ok || st.sender != c {
			s.logger.Warn().Str("client_id", c.ID).Uint32("stream_id", f.ID).Msg("frame for unknown stream")
			return
		}
		st.packets++
		s.relayFrame(c, st.channel, st.recipient, f.Kind, f.ID, st.packets, f.Payload)
	}
}

// recipients returns the members of channel other than sender, narrowed
// to recipient when it is set.
func (s *Server) recipients(sender *Client, channel, recipient string) []*Client {
	var out []*Client
	for _, m := range s.members(channel) {
		if m == sender {
			continue
		}
		if recipient != "" {
			if _, username, _ := m.identity(); username != recipient {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}

func (s *Server) relay(sender *Client, channel, recipient string, event types.Payload) {
	for _, m := range s.recipients(sender, channel, recipient) {
		m.sendJSON(event)
	}
}

func (s *Server) relayFrame(sender *Client, channel, recipient string, kind byte, id, tag uint32, payload []byte) {
	for _, m := range s.recipients(sender, channel, recipient) {
		m.sendFrame(kind, id, tag, payload)
	}
}

func (s *Server) broadcastStatus(channel string) {
	members := s.members(channel)
	status := types.Payload{
		command.KeyCommand:          command.EventOnChannelStatus,
		command.KeyChannel:          channel,
		command.KeyStatus:           channelStatusOnline,
		command.KeyUsersOnline:      len(members),
		command.KeyImagesSupported:  s.cfg.ImagesSupported,
		command.KeyTextingSupported: s.cfg.TextingSupported,
		command.KeyLocationsSupport: s.cfg.LocationsSupported,
	}
	for _, m := range members {
		m.sendJSON(status)
	}
}
