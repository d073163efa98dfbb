package command

import (
	"encoding/base64"

	"github.com/orchestra-mcp/channel/src/types"
)

// StartStreamCommand opens an outgoing voice stream.
type StartStreamCommand struct {
	Codec          string
	CodecHeader    []byte
	PacketDuration int
	Recipient      string

	OnSuccess func(streamID uint32)
	OnFailure func(err types.VoiceStreamError)
}

func (c *StartStreamCommand) Name() string           { return StartStream }
func (c *StartStreamCommand) RequiresResponse() bool { return true }

func (c *StartStreamCommand) Body() types.Payload {
	body := types.Payload{
		KeyType:           ValAudio,
		KeyCodec:          c.Codec,
		KeyCodecHeader:    base64.StdEncoding.EncodeToString(c.CodecHeader),
		KeyPacketDuration: c.PacketDuration,
	}
	return withRecipient(body, c.Recipient)
}

func (c *StartStreamCommand) Read(response types.Payload) {
	r := ParseSimpleResponse(response)
	if r.Succeeded {
		if id := response.Int(KeyStreamID, -1); id >= 0 {
			c.OnSuccess(uint32(id))
			return
		}
	}
	switch r.Error {
	case ErrorBusy, ErrorChannelNotReady:
		c.OnFailure(types.VoiceBusy)
	case ErrorListenOnlyConnection:
		c.OnFailure(types.VoiceListenOnly)
	case ErrorFailedToStartStream:
		c.OnFailure(types.VoiceFailedToStart)
	default:
		c.OnFailure(types.VoiceBadResponse)
	}
}

func (c *StartStreamCommand) Error() {
	c.OnFailure(types.VoiceNoResponse)
}

// StopStreamCommand closes an outgoing voice stream.
type StopStreamCommand struct {
	StreamID uint32
}

func (c *StopStreamCommand) Name() string           { return StopStream }
func (c *StopStreamCommand) RequiresResponse() bool { return false }
func (c *StopStreamCommand) Read(types.Payload)     {}
func (c *StopStreamCommand) Error()                 {}

func (c *StopStreamCommand) Body() types.Payload {
	return types.Payload{KeyStreamID: c.StreamID}
}
