package session

import (
	"time"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/orchestra-mcp/channel/src/voice"
)

// sessionEvents receives one transport's events. Events from a transport
// the session has since replaced are ignored.
type sessionEvents struct {
	session *Session
}

func (e *sessionEvents) current() bool {
	return e.session.events == e
}

func (e *sessionEvents) OnConnectSucceeded() {
	if !e.current() {
		return
	}
	s := e.session
	s.logger.Info().Msg("transport connected")
	s.nextReconnectDelay = config.ReconnectInitialDelay
	s.startLogon()
}

func (e *sessionEvents) OnConnectFailed() {
	if !e.current() {
		return
	}
	s := e.session
	if s.reconnectWithRefreshToken() {
		return
	}
	s.performDisconnect()
	s.listener.OnConnectFailed(s, &types.ConnectError{Kind: types.ConnectFailed})
}

func (e *sessionEvents) OnDisconnected() {
	if !e.current() {
		return
	}
	s := e.session
	if s.reconnectWithRefreshToken() {
		return
	}
	s.performDisconnect()
	s.listener.OnDisconnected(s)
}

func (e *sessionEvents) OnIncomingCommand(command string, payload types.Payload, ack transport.ReadAck) {
	if !e.current() {
		return
	}
	e.session.onIncomingCommand(command, payload, ack)
}

func (e *sessionEvents) OnIncomingVoiceStreamData(streamID, packetID uint32, data []byte) {
	if !e.current() {
		return
	}
	e.session.voice.OnData(streamID, packetID, data)
}

func (e *sessionEvents) OnIncomingImageData(imageID, tag uint32, data []byte) {
	if !e.current() {
		return
	}
	e.session.images.OnImageData(imageID, tag, data)
}

// reconnectWithRefreshToken schedules a reconnect when the session has
// logged on before and the listener agrees. It reports whether it did.
func (s *Session) reconnectWithRefreshToken() bool {
	if s.refreshToken == "" {
		return false
	}
	if !s.listener.OnSessionWillReconnect(s, ReconnectUnknown) {
		return false
	}
	s.performDisconnect()
	s.setState(Connecting)
	s.reconnectAfterDelay()
	return true
}

// reconnectAfterDelay waits the current backoff with jitter in [0.5, 1.5)
// and doubles the next one, up to a minute.
func (s *Session) reconnectAfterDelay() {
	delay := time.Duration(float64(s.nextReconnectDelay) * (s.random() + 0.5))
	s.nextReconnectDelay = min(s.nextReconnectDelay*2, config.ReconnectMaxDelay)

	s.logger.Info().Dur("delay", delay).Msg("reconnecting")
	s.cancelReconnect = s.loop.PostDelayed(delay, func() {
		s.cancelReconnect = nil
		s.performConnect()
	})
}

// imageEvents forwards image manager events to the listener.
type imageEvents struct {
	session *Session
}

func (e imageEvents) OnImageMessage(info types.ImageInfo) {
	e.session.listener.OnImageMessage(e.session, info)
}

func (e imageEvents) OnInvalidImageMessage(err *types.InvalidImageMessageError) {
	e.session.listener.OnError(e.session, err)
}

// voiceEvents forwards voice manager events to the listener.
type voiceEvents struct {
	session *Session
}

func (e voiceEvents) OnOutgoingStreamStarted(stream *voice.OutgoingStream) {
	e.session.listener.OnOutgoingVoiceStarted(e.session, stream)
}

func (e voiceEvents) OnOutgoingStreamFailed(stream *voice.OutgoingStream, err types.VoiceStreamError) {
	e.session.listener.OnOutgoingVoiceFailed(e.session, stream, err)
}

func (e voiceEvents) OnIncomingStreamStarted(stream *voice.IncomingStream) {
	e.session.listener.OnIncomingVoiceStarted(e.session, stream)
}

func (e voiceEvents) OnStreamStopped(stream voice.Stream) {
	e.session.listener.OnVoiceStopped(e.session, stream)
}
