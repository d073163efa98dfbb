package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Binary frame markers.
const (
	FrameVoice byte = 0x01
	FrameImage byte = 0x02
)

// FrameHeaderLen is the marker byte plus two big-endian uint32 fields.
const FrameHeaderLen = 9

var (
	ErrShortFrame   = errors.New("frame shorter than header")
	ErrUnknownFrame = errors.New("unknown frame marker")
)

// Frame is a decoded binary media frame. For image frames ID is the image
// id and Tag the image tag; for voice frames ID is the stream id and Tag
// the packet id.
type Frame struct {
	Kind    byte
	ID      uint32
	Tag     uint32
	Payload []byte
}

// EncodeFrame lays out [kind][id][tag][payload].
func EncodeFrame(kind byte, id, tag uint32, payload []byte) []byte {
	buf := make([]byte, FrameHeaderLen+len(payload))
	buf[0] = kind
	binary.BigEndian.PutUint32(buf[1:5], id)
	binary.BigEndian.PutUint32(buf[5:9], tag)
	copy(buf[FrameHeaderLen:], payload)
	return buf
}

// DecodeFrame parses a binary frame. The payload aliases data.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < FrameHeaderLen {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(data))
	}
	kind := data[0]
	if kind != FrameVoice && kind != FrameImage {
		return Frame{}, fmt.Errorf("%w: 0x%02x", ErrUnknownFrame, kind)
	}
	return Frame{
		Kind:    kind,
		ID:      binary.BigEndian.Uint32(data[1:5]),
		Tag:     binary.BigEndian.Uint32(data[5:9]),
		Payload: data[FrameHeaderLen:],
	}, nil
}
