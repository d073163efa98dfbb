package images

import (
	"fmt"
	"image"
	"time"

	"github.com/orchestra-mcp/channel/config"
	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/rs/zerolog"
)

// Binary frame tags for image data.
const (
	TagImage     uint32 = 1
	TagThumbnail uint32 = 2
)

// Listener receives inbound image events on the executor.
type Listener interface {
	OnImageMessage(info types.ImageInfo)
	OnInvalidImageMessage(err *types.InvalidImageMessageError)
}

// SentFunc is called once per SendImage with the server-assigned id, or 0
// and a *types.SendImageError.
type SentFunc func(imageID uint32, err error)

// Options tune a Manager. Zero values pick defaults.
type Options struct {
	RequestTimeout     time.Duration
	IncomingTimeout    time.Duration
	MaxDimension       int
	ThumbnailDimension int
	ByteBudget         int
}

func (o *Options) setDefaults() {
	defaults := config.DefaultConfig()
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = defaults.RequestTimeout
	}
	if o.IncomingTimeout <= 0 {
		o.IncomingTimeout = defaults.IncomingImageTimeout
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = config.MaxImageDimension
	}
	if o.ThumbnailDimension <= 0 {
		o.ThumbnailDimension = config.ThumbnailDimension
	}
	if o.ByteBudget <= 0 {
		o.ByteBudget = config.ImageByteBudget
	}
}

type incomingImage struct {
	sender      string
	dimensions  types.Dimensions
	thumbnail   image.Image
	image       image.Image
	lastTouched time.Time
}

// pendingDecode holds a chunk's place in arrival order until its decode
// finishes.
type pendingDecode struct {
	imageID uint32
	tag     uint32
	decoded image.Image
	err     error
	ready   bool
}

// Manager sends images and reassembles received ones. Except for the
// encode/decode work it hands to the pool, every method must be called on
// exec, and all listener calls happen there.
type Manager struct {
	listener Listener
	exec     dispatch.Executor
	pool     dispatch.Worker
	codec    Codec
	clock    clock.Clock
	opts     Options
	logger   zerolog.Logger

	incoming     map[uint32]*incomingImage
	decodes      []*pendingDecode
	lastSweep    time.Time
	sweepPending bool
	cancelSweep  func()
}

// NewManager creates a Manager.
func NewManager(listener Listener, exec dispatch.Executor, pool dispatch.Worker, codec Codec, c clock.Clock, opts Options, logger zerolog.Logger) *Manager {
	opts.setDefaults()
	if codec == nil {
		codec = JPEGCodec{}
	}
	return &Manager{
		listener: listener,
		exec:     exec,
		pool:     pool,
		codec:    codec,
		clock:    c,
		opts:     opts,
		logger:   logger.With().Str("component", "images").Logger(),
		incoming: make(map[uint32]*incomingImage),
	}
}

// IsTypeValid reports whether an announced image type can be received.
func (m *Manager) IsTypeValid(imageType string) bool {
	return imageType == command.ValJPEG
}

// SendImage scales and compresses img on the pool, announces it, and once
// the server assigns an id sends the thumbnail and then the image over t.
// done may be nil.
func (m *Manager) SendImage(img image.Image, t transport.Transport, recipient string, done SentFunc) {
	if done == nil {
		done = func(uint32, error) {}
	}
	if img == nil {
		m.exec.Post(func() { done(0, &types.SendImageError{Message: "no image"}) })
		return
	}
	m.pool.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().Interface("panic", r).Msg("image encoding panicked")
				m.exec.Post(func() { done(0, &types.SendImageError{Message: fmt.Sprintf("encode image: %v", r)}) })
			}
		}()

		resized := ScaleToFit(m.codec, img, types.Square(m.opts.MaxDimension))
		thumbnail := ScaleToFit(m.codec, img, types.Square(m.opts.ThumbnailDimension))

		imageBytes, err := Compress(m.codec, resized, m.opts.ByteBudget)
		if err != nil {
			m.exec.Post(func() { done(0, &types.SendImageError{Message: err.Error()}) })
			return
		}
		thumbnailBytes, err := m.codec.Encode(thumbnail, config.CompressStartQuality)
		if err != nil {
			m.exec.Post(func() { done(0, &types.SendImageError{Message: err.Error()}) })
			return
		}

		cmd := &command.SendImageCommand{
			Dimensions:      DimensionsOf(resized),
			ImageLength:     len(imageBytes),
			ThumbnailLength: len(thumbnailBytes),
			Recipient:       recipient,
			OnSuccess: func(imageID uint32) {
				t.SendImageData(imageID, TagThumbnail, thumbnailBytes)
				t.SendImageData(imageID, TagImage, imageBytes)
				done(imageID, nil)
			},
			OnFailure: func(message string) {
				done(0, &types.SendImageError{Message: message})
			},
		}
		m.exec.Post(func() {
			command.Send(m.exec, t, cmd, m.opts.RequestTimeout)
		})
	})
}

// OnImageHeader starts tracking an announced image, replacing any entry
// with the same id.
func (m *Manager) OnImageHeader(imageID uint32, sender string, dimensions types.Dimensions) {
	m.incoming[imageID] = &incomingImage{
		sender:      sender,
		dimensions:  dimensions,
		lastTouched: m.clock.Now(),
	}
	m.scheduleSweep()
}

// OnImageData decodes a received chunk on the pool and applies it. Chunks
// are applied in arrival order whatever order their decodes finish in. Data
// for ids that are not tracked is dropped.
func (m *Manager) OnImageData(imageID uint32, tag uint32, data []byte) {
	if tag != TagImage && tag != TagThumbnail {
		m.listener.OnInvalidImageMessage(&types.InvalidImageMessageError{ImageID: imageID, Message: "tag missing"})
		return
	}
	pending := &pendingDecode{imageID: imageID, tag: tag}
	m.decodes = append(m.decodes, pending)
	m.pool.Go(func() {
		decoded, err := m.decode(data)
		m.exec.Post(func() {
			pending.decoded, pending.err, pending.ready = decoded, err, true
			m.drainDecodes()
		})
	})
}

func (m *Manager) decode(data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode image: %v", r)
		}
	}()
	return m.codec.Decode(data)
}

// drainDecodes applies finished decodes from the head of the queue and stops
// at the first one still running.
func (m *Manager) drainDecodes() {
	for len(m.decodes) > 0 && m.decodes[0].ready {
		next := m.decodes[0]
		m.decodes[0] = nil
		m.decodes = m.decodes[1:]

		if next.err != nil {
			m.logger.Warn().Err(next.err).Uint32("image_id", next.imageID).Msg("undecodable image data")
			m.listener.OnInvalidImageMessage(&types.InvalidImageMessageError{ImageID: next.imageID, Message: "invalid image data"})
			continue
		}
		m.apply(next.imageID, next.tag, next.decoded)
	}
}

func (m *Manager) apply(imageID uint32, tag uint32, decoded image.Image) {
	entry, ok := m.incoming[imageID]
	if !ok {
		m.logger.Debug().Uint32("image_id", imageID).Msg("data for unknown image, dropping")
		return
	}

	info := types.ImageInfo{ImageID: imageID, Sender: entry.sender}
	switch tag {
	case TagImage:
		info.Thumbnail = entry.thumbnail
		info.Image = decoded
		delete(m.incoming, imageID)
	case TagThumbnail:
		entry.thumbnail = decoded
		entry.lastTouched = m.clock.Now()
		info.Thumbnail = decoded
		info.Image = entry.image
		m.scheduleSweep()
	}
	m.listener.OnImageMessage(info)
}

// Pending returns the number of images awaiting data.
func (m *Manager) Pending() int {
	return len(m.incoming)
}

// Stop cancels the pending sweep.
func (m *Manager) Stop() {
	if m.cancelSweep != nil {
		m.cancelSweep()
		m.cancelSweep = nil
	}
	m.sweepPending = false
}

// scheduleSweep arms one sweep per timeout window.
func (m *Manager) scheduleSweep() {
	now := m.clock.Now()
	if m.sweepPending && now.Sub(m.lastSweep) < m.opts.IncomingTimeout {
		return
	}
	m.lastSweep = now
	m.sweepPending = true
	m.cancelSweep = m.exec.PostDelayed(m.opts.IncomingTimeout, m.sweep)
}

func (m *Manager) sweep() {
	m.sweepPending = false
	m.cancelSweep = nil

	cutoff := m.clock.Now().Add(-m.opts.IncomingTimeout)
	for id, entry := range m.incoming {
		if entry.lastTouched.Before(cutoff) {
			m.logger.Debug().Uint32("image_id", id).Msg("evicting incomplete image")
			delete(m.incoming, id)
		}
	}
	if len(m.incoming) > 0 {
		m.scheduleSweep()
	}
}
