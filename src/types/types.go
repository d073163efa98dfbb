package types

import "image"

// ChannelFeature is a capability advertised by the connected channel.
type ChannelFeature int

const (
	ImageMessages ChannelFeature = iota
	TextMessages
	LocationMessages
)

func (f ChannelFeature) String() string {
	switch f {
	case ImageMessages:
		return "image_messages"
	case TextMessages:
		return "text_messages"
	case LocationMessages:
		return "location_messages"
	}
	return "unknown"
}

// FeatureSet is a set of channel features. The zero value is empty.
type FeatureSet uint8

// Has reports whether f is in the set.
func (s FeatureSet) Has(f ChannelFeature) bool { return s&(1<<f) != 0 }

// With returns the set with f added.
func (s FeatureSet) With(f ChannelFeature) FeatureSet { return s | 1<<f }

// Features lists the members in declaration order.
func (s FeatureSet) Features() []ChannelFeature {
	var out []ChannelFeature
	for _, f := range []ChannelFeature{ImageMessages, TextMessages, LocationMessages} {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Dimensions is a width and height in pixels.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Square returns Dimensions with equal sides.
func Square(side int) Dimensions { return Dimensions{Width: side, Height: side} }

// Location is a position reported to or received from the channel.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Accuracy in meters.
	Accuracy float64 `json:"accuracy"`
	// Address is the reverse geocoded description, empty if unknown.
	Address string `json:"formatted_address,omitempty"`
}

// ImageInfo is delivered to the listener for each received image chunk.
// Thumbnail and Image are nil until the corresponding chunk arrives.
type ImageInfo struct {
	ImageID   uint32
	Sender    string
	Thumbnail image.Image
	Image     image.Image
}
