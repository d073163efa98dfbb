package command

// Command names.
const (
	Logon           = "logon"
	SendTextMessage = "send_text_message"
	SendImage       = "send_image"
	SendLocation    = "send_location"
	StartStream     = "start_stream"
	StopStream      = "stop_stream"
)

// Inbound event names.
const (
	EventOnStreamStart   = "on_stream_start"
	EventOnStreamStop    = "on_stream_stop"
	EventOnError         = "on_error"
	EventOnChannelStatus = "on_channel_status"
	EventOnTextMessage   = "on_text_message"
	EventOnImage         = "on_image"
	EventOnLocation      = "on_location"
)

// Payload keys.
const (
	KeyCommand          = "command"
	KeySeq              = "seq"
	KeySuccess          = "success"
	KeyError            = "error"
	KeyAuthToken        = "auth_token"
	KeyRefreshToken     = "refresh_token"
	KeyUsername         = "username"
	KeyPassword         = "password"
	KeyChannel          = "channel"
	KeyRecipient        = "for"
	KeyFrom             = "from"
	KeyMessageID        = "message_id"
	KeyText             = "text"
	KeyType             = "type"
	KeyWidth            = "width"
	KeyHeight           = "height"
	KeyImageLength      = "content_length"
	KeyThumbnailLength  = "thumbnail_content_length"
	KeyImageID          = "image_id"
	KeyLatitude         = "latitude"
	KeyLongitude        = "longitude"
	KeyAccuracy         = "accuracy"
	KeyFormattedAddress = "formatted_address"
	KeyCodec            = "codec"
	KeyCodecHeader      = "codec_header"
	KeyPacketDuration   = "packet_duration"
	KeyStreamID         = "stream_id"
	KeyStreamIDAlt      = "streamId"
	KeyImagesSupported  = "images_supported"
	KeyTextingSupported = "texting_supported"
	KeyLocationsSupport = "locations_supported"
	KeyUsersOnline      = "users_online"
	KeyStatus           = "status"
)

// Values.
const (
	ValAudio = "audio"
	ValJPEG  = "jpeg"
)

// Server error strings.
const (
	ErrorNotAuthorized          = "not authorized"
	ErrorInvalidPassword        = "invalid password"
	ErrorInvalidUsername        = "invalid username"
	ErrorBusy                   = "busy"
	ErrorChannelNotReady        = "channel is not ready"
	ErrorListenOnlyConnection   = "listen only connection"
	ErrorFailedToStartStream    = "failed to start stream"
	ErrorServerClosedConnection = "server closed connection"
)
