package command

import (
	"github.com/orchestra-mcp/channel/src/types"
)

// SendTextCommand posts a text message. No response is expected.
type SendTextCommand struct {
	Text      string
	Recipient string
}

func (c *SendTextCommand) Name() string           { return SendTextMessage }
func (c *SendTextCommand) RequiresResponse() bool { return false }
func (c *SendTextCommand) Read(types.Payload)     {}
func (c *SendTextCommand) Error()                 {}

func (c *SendTextCommand) Body() types.Payload {
	return withRecipient(types.Payload{KeyText: c.Text}, c.Recipient)
}

// SendLocationCommand posts a location. No response is expected.
type SendLocationCommand struct {
	Location  types.Location
	Recipient string
}

func (c *SendLocationCommand) Name() string           { return SendLocation }
func (c *SendLocationCommand) RequiresResponse() bool { return false }
func (c *SendLocationCommand) Read(types.Payload)     {}
func (c *SendLocationCommand) Error()                 {}

func (c *SendLocationCommand) Body() types.Payload {
	body := types.Payload{
		KeyLatitude:  c.Location.Latitude,
		KeyLongitude: c.Location.Longitude,
		KeyAccuracy:  c.Location.Accuracy,
	}
	if c.Location.Address != "" {
		body[KeyFormattedAddress] = c.Location.Address
	}
	return withRecipient(body, c.Recipient)
}

// SendImageCommand announces an image. The server answers with the image
// id that the thumbnail and image chunks must carry.
type SendImageCommand struct {
	Dimensions      types.Dimensions
	ImageLength     int
	ThumbnailLength int
	Recipient       string

	OnSuccess func(imageID uint32)
	OnFailure func(message string)
}

func (c *SendImageCommand) Name() string           { return SendImage }
func (c *SendImageCommand) RequiresResponse() bool { return true }

func (c *SendImageCommand) Body() types.Payload {
	body := types.Payload{
		KeyType:            ValJPEG,
		KeyThumbnailLength: c.ThumbnailLength,
		KeyImageLength:     c.ImageLength,
		KeyWidth:           c.Dimensions.Width,
		KeyHeight:          c.Dimensions.Height,
	}
	return withRecipient(body, c.Recipient)
}

func (c *SendImageCommand) Read(response types.Payload) {
	r := ParseSimpleResponse(response)
	if !r.Succeeded {
		msg := r.Error
		if msg == "" {
			msg = "unknown error"
		}
		c.OnFailure(msg)
		return
	}
	if !response.Has(KeyImageID) {
		c.OnFailure("missing " + KeyImageID + " in response")
		return
	}
	c.OnSuccess(uint32(response.Int(KeyImageID, 0)))
}

func (c *SendImageCommand) Error() {
	c.OnFailure("no response")
}
