package types

import (
	"errors"
	"fmt"
)

// ConnectErrorKind classifies a failed connect attempt.
type ConnectErrorKind int

const (
	// ConnectFailed means the transport could not reach the server.
	ConnectFailed ConnectErrorKind = iota
	// BadCredentials means the server rejected the token or account.
	BadCredentials
	// NoResponse means logon timed out.
	NoResponse
	// BadResponse means the server answered with something unexpected.
	BadResponse
)

func (k ConnectErrorKind) String() string {
	switch k {
	case ConnectFailed:
		return "connect failed"
	case BadCredentials:
		return "bad credentials"
	case NoResponse:
		return "no response"
	case BadResponse:
		return "bad response"
	}
	return "unknown"
}

// ConnectError is reported once per failed connect attempt.
type ConnectError struct {
	Kind ConnectErrorKind
	// Payload is the raw server response for BadResponse.
	Payload Payload
	Err     error
}

func (e *ConnectError) Error() string {
	msg := "channel: " + e.Kind.String()
	if e.Kind == BadResponse && e.Payload != nil {
		msg += ": " + e.Payload.JSON()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Is matches another *ConnectError of the same kind.
func (e *ConnectError) Is(target error) bool {
	var other *ConnectError
	if errors.As(target, &other) {
		return other.Kind == e.Kind
	}
	return false
}

// Sentinels for errors.Is.
var (
	ErrConnectFailed  = &ConnectError{Kind: ConnectFailed}
	ErrBadCredentials = &ConnectError{Kind: BadCredentials}
	ErrNoResponse     = &ConnectError{Kind: NoResponse}
	ErrBadResponse    = &ConnectError{Kind: BadResponse}
)

// VoiceStreamError is reported to the listener when an outgoing voice
// stream cannot be started.
type VoiceStreamError int

const (
	VoiceBusy VoiceStreamError = iota
	VoiceListenOnly
	VoiceFailedToStart
	VoiceBadResponse
	VoiceNoResponse
)

func (e VoiceStreamError) Error() string {
	switch e {
	case VoiceBusy:
		return "channel: voice stream busy"
	case VoiceListenOnly:
		return "channel: listen only connection"
	case VoiceFailedToStart:
		return "channel: failed to start voice stream"
	case VoiceBadResponse:
		return "channel: bad response to start stream"
	case VoiceNoResponse:
		return "channel: no response to start stream"
	}
	return "channel: voice stream error"
}

// SendImageError is passed to the SendImage continuation.
type SendImageError struct {
	Message string
}

func (e *SendImageError) Error() string { return "send image: " + e.Message }

// Messages carried by SendLocationError.
const (
	NoProvider = "No providers for criteria"
	NoLocation = "Location could not be found"
)

// SendLocationError is passed to the SendLocation continuation.
type SendLocationError struct {
	Message string
}

func (e *SendLocationError) Error() string { return "send location: " + e.Message }

// InvalidMessageFormat is the generic description used for malformed
// inbound messages.
const InvalidMessageFormat = "Invalid Message Format"

// InvalidMessageFormatError names the inbound command and key that failed
// validation. The message is dropped when this is reported.
type InvalidMessageFormatError struct {
	Command string
	Key     string
	Payload Payload
	Message string
}

func (e *InvalidMessageFormatError) Error() string {
	return fmt.Sprintf("%s: %s.%s: %s", InvalidMessageFormat, e.Command, e.Key, e.Message)
}

// InvalidImageMessageError is reported for image data that cannot be used.
type InvalidImageMessageError struct {
	ImageID uint32
	Message string
}

func (e *InvalidImageMessageError) Error() string {
	return fmt.Sprintf("invalid image message %d: %s", e.ImageID, e.Message)
}
