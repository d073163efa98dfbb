package session

import (
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/orchestra-mcp/channel/src/voice"
)

// Listener receives session events. Every method is called on the
// session's executor goroutine, one at a time. Methods may call back into
// the Session.
type Listener interface {
	OnConnectStarted(s *Session)
	OnConnectSucceeded(s *Session)
	OnConnectFailed(s *Session, err *types.ConnectError)
	OnDisconnected(s *Session)
	// OnSessionWillReconnect is asked before an automatic reconnect.
	// Returning false gives up and reports the disconnect instead.
	OnSessionWillReconnect(s *Session, reason ReconnectReason) bool

	OnChannelStatusUpdate(s *Session)
	OnTextMessage(s *Session, message, sender string)
	OnImageMessage(s *Session, info types.ImageInfo)
	OnLocationMessage(s *Session, sender string, loc types.Location)
	// OnError reports problems that do not affect the connection.
	OnError(s *Session, err error)

	// OnIncomingVoiceWillStart lets the application pick a receiver. A nil
	// result discards the audio.
	OnIncomingVoiceWillStart(s *Session, info voice.IncomingInfo) *voice.IncomingConfig
	OnIncomingVoiceStarted(s *Session, stream *voice.IncomingStream)
	OnOutgoingVoiceStarted(s *Session, stream *voice.OutgoingStream)
	OnOutgoingVoiceFailed(s *Session, stream *voice.OutgoingStream, err types.VoiceStreamError)
	OnVoiceStopped(s *Session, stream voice.Stream)
}

// BaseListener implements Listener with no-ops. Embed it to handle only
// some events.
type BaseListener struct{}

func (BaseListener) OnConnectStarted(*Session)                             {}
func (BaseListener) OnConnectSucceeded(*Session)                           {}
func (BaseListener) OnConnectFailed(*Session, *types.ConnectError)         {}
func (BaseListener) OnDisconnected(*Session)                               {}
func (BaseListener) OnSessionWillReconnect(*Session, ReconnectReason) bool { return false }
func (BaseListener) OnChannelStatusUpdate(*Session)                        {}
func (BaseListener) OnTextMessage(*Session, string, string)                {}
func (BaseListener) OnImageMessage(*Session, types.ImageInfo)              {}
func (BaseListener) OnLocationMessage(*Session, string, types.Location)    {}
func (BaseListener) OnError(*Session, error)                               {}

func (BaseListener) OnIncomingVoiceWillStart(*Session, voice.IncomingInfo) *voice.IncomingConfig {
	return nil
}

func (BaseListener) OnIncomingVoiceStarted(*Session, *voice.IncomingStream)                        {}
func (BaseListener) OnOutgoingVoiceStarted(*Session, *voice.OutgoingStream)                        {}
func (BaseListener) OnOutgoingVoiceFailed(*Session, *voice.OutgoingStream, types.VoiceStreamError) {}
func (BaseListener) OnVoiceStopped(*Session, voice.Stream)                                         {}
