package session

import (
	"encoding/base64"
	"fmt"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/orchestra-mcp/channel/src/voice"
)

const (
	minLatitude  = -90.0
	maxLatitude  = 90.0
	minLongitude = -180.0
	maxLongitude = 180.0
)

func (s *Session) onIncomingCommand(name string, payload types.Payload, _ transport.ReadAck) {
	switch name {
	case command.EventOnStreamStart:
		s.handleStreamStart(payload)
	case command.EventOnStreamStop:
		s.handleStreamStop(payload)
	case command.EventOnError:
		s.handleServerError(payload)
	case command.EventOnChannelStatus:
		s.handleChannelStatus(payload)
	case command.EventOnTextMessage:
		s.handleTextMessage(payload)
	case command.EventOnImage:
		s.handleImageMessage(payload)
	case command.EventOnLocation:
		s.handleLocationMessage(payload)
	default:
		s.logger.Debug().Str("command", name).Msg("ignoring unknown command")
	}
}

func (s *Session) handleChannelStatus(p types.Payload) {
	var features types.FeatureSet
	if p.Bool(command.KeyImagesSupported, false) {
		features = features.With(types.ImageMessages)
	}
	if p.Bool(command.KeyTextingSupported, false) {
		features = features.With(types.TextMessages)
	}
	if p.Bool(command.KeyLocationsSupport, false) {
		features = features.With(types.LocationMessages)
	}
	s.features = features
	s.usersOnline = int(p.Int(command.KeyUsersOnline, 0))
	s.publish()

	s.listener.OnChannelStatusUpdate(s)
}

func (s *Session) handleTextMessage(p types.Payload) {
	s.listener.OnTextMessage(s, p.String(command.KeyText, ""), p.String(command.KeyFrom, ""))
}

func (s *Session) handleServerError(p types.Payload) {
	msg := p.String(command.KeyError, "")
	if msg == "" {
		return
	}
	s.logger.Warn().Str("error", msg).Msg("server error")
	if msg == command.ErrorServerClosedConnection {
		s.refreshToken = ""
	}
}

// invalid reports a malformed inbound message.
func (s *Session) invalid(cmd, key string, p types.Payload, format string, args ...any) {
	err := &types.InvalidMessageFormatError{
		Command: cmd,
		Key:     key,
		Payload: p,
		Message: fmt.Sprintf(format, args...),
	}
	s.logger.Warn().Err(err).Msg("dropping inbound message")
	s.listener.OnError(s, err)
}

func (s *Session) handleImageMessage(p types.Payload) {
	const cmd = command.EventOnImage
	sender := p.String(command.KeyFrom, "")

	if !p.Has(command.KeyMessageID) {
		s.invalid(cmd, command.KeyMessageID, p, "Missing image id")
		return
	}
	imageID := uint32(p.Int(command.KeyMessageID, 0))

	if !p.Has(command.KeyType) {
		s.invalid(cmd, command.KeyType, p, "Missing image type")
		return
	}
	if imageType := p.String(command.KeyType, ""); !s.images.IsTypeValid(imageType) {
		s.invalid(cmd, command.KeyType, p, "Invalid image type '%s'", imageType)
		return
	}

	if !p.Has(command.KeyHeight) {
		s.invalid(cmd, command.KeyHeight, p, "Missing image height")
		return
	}
	height := p.Int(command.KeyHeight, 0)
	if height < 1 || height > config.MaxIncomingDimension {
		s.invalid(cmd, command.KeyHeight, p, "Height %d out of allowed range", height)
		return
	}

	if !p.Has(command.KeyWidth) {
		s.invalid(cmd, command.KeyWidth, p, "Missing image width")
		return
	}
	width := p.Int(command.KeyWidth, 0)
	if width < 1 || width > config.MaxIncomingDimension {
		s.invalid(cmd, command.KeyWidth, p, "Width %d out of allowed range", width)
		return
	}

	s.images.OnImageHeader(imageID, sender, types.Dimensions{Width: int(width), Height: int(height)})
}

func (s *Session) handleLocationMessage(p types.Payload) {
	const cmd = command.EventOnLocation
	sender := p.String(command.KeyFrom, "")

	if !p.Has(command.KeyLatitude) {
		s.invalid(cmd, command.KeyLatitude, p, "Missing latitude")
		return
	}
	latitude := p.Float(command.KeyLatitude, 0)
	if latitude < minLatitude || latitude > maxLatitude {
		s.invalid(cmd, command.KeyLatitude, p, "Latitude %v out of range %v..%v", latitude, minLatitude, maxLatitude)
		return
	}

	if !p.Has(command.KeyLongitude) {
		s.invalid(cmd, command.KeyLongitude, p, "Missing longitude")
		return
	}
	longitude := p.Float(command.KeyLongitude, 0)
	if longitude < minLongitude || longitude > maxLongitude {
		s.invalid(cmd, command.KeyLongitude, p, "Longitude %v out of range %v..%v", longitude, minLongitude, maxLongitude)
		return
	}

	if !p.Has(command.KeyAccuracy) {
		s.invalid(cmd, command.KeyAccuracy, p, "Missing accuracy")
		return
	}
	accuracy := p.Float(command.KeyAccuracy, 0)
	if accuracy < 0 {
		s.invalid(cmd, command.KeyAccuracy, p, "Accuracy %v may not be negative", accuracy)
		return
	}

	s.listener.OnLocationMessage(s, sender, types.Location{
		Latitude:  latitude,
		Longitude: longitude,
		Accuracy:  accuracy,
		Address:   p.String(command.KeyFormattedAddress, ""),
	})
}

func (s *Session) handleStreamStart(p types.Payload) {
	sender := p.String(command.KeyFrom, "")
	channel := p.String(command.KeyChannel, "")
	if sender == "" || channel == "" {
		s.listener.OnConnectFailed(s, &types.ConnectError{Kind: types.BadResponse, Payload: p})
		return
	}

	header, err := base64.StdEncoding.DecodeString(p.String(command.KeyCodecHeader, ""))
	if err != nil {
		s.logger.Warn().Err(err).Msg("undecodable codec header")
		header = nil
	}

	info := voice.IncomingInfo{Sender: sender, Channel: channel}
	cfg := s.listener.OnIncomingVoiceWillStart(s, info)
	s.voice.StartIncoming(
		uint32(p.Int(command.KeyStreamID, 0)),
		info,
		p.String(command.KeyCodec, ""),
		header,
		int(p.Int(command.KeyPacketDuration, 0)),
		cfg,
	)
}

func (s *Session) handleStreamStop(p types.Payload) {
	id := p.Int(command.KeyStreamID, p.Int(command.KeyStreamIDAlt, 0))
	if !s.voice.StopIncoming(uint32(id)) {
		s.logger.Debug().Int64("stream_id", id).Msg("no incoming stream to stop")
	}
}
