package images

import (
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/orchestra-mcp/channel/src/command"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inlineWorker struct{}

func (inlineWorker) Go(fn func()) { fn() }

type recordingListener struct {
	messages []types.ImageInfo
	invalid  []*types.InvalidImageMessageError
}

func (r *recordingListener) OnImageMessage(info types.ImageInfo) {
	r.messages = append(r.messages, info)
}

func (r *recordingListener) OnInvalidImageMessage(err *types.InvalidImageMessageError) {
	r.invalid = append(r.invalid, err)
}

type imageFrame struct {
	id   uint32
	tag  uint32
	data []byte
}

// fakeTransport records everything written to it, in order.
type fakeTransport struct {
	mu     sync.Mutex
	log    []string
	acks   []transport.SendAck
	bodies []types.Payload
	frames []imageFrame
}

func (f *fakeTransport) Connect(transport.Events, string, time.Duration) error { return nil }
func (f *fakeTransport) Disconnect()                                           {}
func (f *fakeTransport) SendVoiceStreamData(uint32, []byte)                    {}

func (f *fakeTransport) Send(name string, body types.Payload, ack transport.SendAck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.log = append(f.log, name)
	f.acks = append(f.acks, ack)
	f.bodies = append(f.bodies, body)
}

func (f *fakeTransport) SendImageData(id, tag uint32, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tag == TagImage {
		f.log = append(f.log, "image")
	} else {
		f.log = append(f.log, "thumbnail")
	}
	f.frames = append(f.frames, imageFrame{id: id, tag: tag, data: data})
}

type fixture struct {
	loop     *dispatch.Loop
	clock    *clock.FakeClock
	listener *recordingListener
	manager  *Manager
}

// deferredWorker queues jobs until the test releases them.
type deferredWorker struct {
	mu   sync.Mutex
	jobs []func()
}

func (w *deferredWorker) Go(fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobs = append(w.jobs, fn)
}

// runReversed runs the queued jobs newest first.
func (w *deferredWorker) runReversed() {
	w.mu.Lock()
	jobs := w.jobs
	w.jobs = nil
	w.mu.Unlock()
	for i := len(jobs) - 1; i >= 0; i-- {
		jobs[i]()
	}
}

// panicCodec panics on every operation.
type panicCodec struct{}

func (panicCodec) Resize(image.Image, int, int) image.Image { panic("resize") }
func (panicCodec) Encode(image.Image, int) ([]byte, error)  { panic("encode") }
func (panicCodec) Decode([]byte) (image.Image, error)       { panic("decode") }

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, inlineWorker{}, JPEGCodec{})
}

func newFixtureWith(t *testing.T, worker dispatch.Worker, codec Codec) *fixture {
	t.Helper()
	c := clock.Fake(time.Unix(1000, 0))
	l := dispatch.NewLoop(c, zerolog.Nop())
	go l.Run()
	t.Cleanup(l.Stop)

	listener := &recordingListener{}
	m := NewManager(listener, l, worker, codec, c, Options{}, zerolog.Nop())
	return &fixture{loop: l, clock: c, listener: listener, manager: m}
}

// run executes fn on the loop and lets any follow-up posts settle.
func (f *fixture) run(fn func()) {
	f.loop.Post(fn)
	f.settle()
}

func (f *fixture) settle() {
	for i := 0; i < 3; i++ {
		f.loop.Flush()
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.settle()
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	data, err := JPEGCodec{}.Encode(solid(w, h, color.RGBA{B: 0xff, A: 0xff}), 90)
	require.NoError(t, err)
	return data
}

func TestIsTypeValid(t *testing.T) {
	f := newFixture(t)
	assert.True(t, f.manager.IsTypeValid("jpeg"))
	assert.False(t, f.manager.IsTypeValid("png"))
}

func TestSendImageOrder(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}

	var (
		gotID  uint32
		gotErr error
		calls  int
	)
	f.run(func() {
		f.manager.SendImage(solid(2560, 1280, color.White), tr, "bob", func(id uint32, err error) {
			calls++
			gotID, gotErr = id, err
		})
	})

	require.Equal(t, []string{command.SendImage}, tr.log)
	body := tr.bodies[0]
	assert.Equal(t, 1280, body[command.KeyWidth])
	assert.Equal(t, 640, body[command.KeyHeight])
	assert.Equal(t, "bob", body[command.KeyRecipient])

	f.run(func() { tr.acks[0](types.Payload{command.KeySuccess: true, command.KeyImageID: 55.0}) })

	assert.Equal(t, []string{command.SendImage, "thumbnail", "image"}, tr.log)
	require.Len(t, tr.frames, 2)
	assert.Equal(t, uint32(55), tr.frames[0].id)
	assert.Equal(t, body[command.KeyThumbnailLength], len(tr.frames[0].data))
	assert.Equal(t, body[command.KeyImageLength], len(tr.frames[1].data))

	thumb, err := JPEGCodec{}.Decode(tr.frames[0].data)
	require.NoError(t, err)
	assert.Equal(t, types.Dimensions{Width: 90, Height: 45}, DimensionsOf(thumb))

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint32(55), gotID)
	assert.NoError(t, gotErr)
}

func TestSendImageFailure(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}

	var gotErr error
	f.run(func() {
		f.manager.SendImage(solid(10, 10, color.White), tr, "", func(id uint32, err error) {
			assert.Zero(t, id)
			gotErr = err
		})
	})
	f.run(func() { tr.acks[0](types.Payload{command.KeySuccess: false, command.KeyError: "not allowed"}) })

	var sendErr *types.SendImageError
	require.ErrorAs(t, gotErr, &sendErr)
	assert.Equal(t, "not allowed", sendErr.Message)
	assert.Empty(t, tr.frames)
}

func TestSendImageTimeout(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}

	var gotErr error
	f.run(func() {
		f.manager.SendImage(solid(10, 10, color.White), tr, "", func(_ uint32, err error) { gotErr = err })
	})
	f.advance(30 * time.Second)

	var sendErr *types.SendImageError
	require.ErrorAs(t, gotErr, &sendErr)
	assert.Equal(t, "no response", sendErr.Message)
}

func TestThumbnailThenImage(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, 20, 10)

	f.run(func() { f.manager.OnImageHeader(7, "alice", types.Dimensions{Width: 20, Height: 10}) })
	f.run(func() { f.manager.OnImageData(7, TagThumbnail, data) })

	require.Len(t, f.listener.messages, 1)
	first := f.listener.messages[0]
	assert.Equal(t, uint32(7), first.ImageID)
	assert.Equal(t, "alice", first.Sender)
	assert.NotNil(t, first.Thumbnail)
	assert.Nil(t, first.Image)

	f.run(func() { f.manager.OnImageData(7, TagImage, data) })

	require.Len(t, f.listener.messages, 2)
	second := f.listener.messages[1]
	assert.NotNil(t, second.Thumbnail)
	assert.NotNil(t, second.Image)
	assert.Zero(t, f.manager.Pending())
}

func TestImageThenThumbnail(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, 20, 10)

	f.run(func() { f.manager.OnImageHeader(8, "alice", types.Dimensions{Width: 20, Height: 10}) })
	f.run(func() { f.manager.OnImageData(8, TagImage, data) })
	f.run(func() { f.manager.OnImageData(8, TagThumbnail, data) })

	require.Len(t, f.listener.messages, 1)
	assert.Nil(t, f.listener.messages[0].Thumbnail)
	assert.NotNil(t, f.listener.messages[0].Image)
}

func TestDataForUnknownImageDropped(t *testing.T) {
	f := newFixture(t)
	f.run(func() { f.manager.OnImageData(99, TagImage, jpegBytes(t, 4, 4)) })

	assert.Empty(t, f.listener.messages)
	assert.Empty(t, f.listener.invalid)
}

func TestInvalidTag(t *testing.T) {
	f := newFixture(t)
	f.run(func() { f.manager.OnImageHeader(3, "alice", types.Square(4)) })
	f.run(func() { f.manager.OnImageData(3, 9, jpegBytes(t, 4, 4)) })

	assert.Empty(t, f.listener.messages)
	require.Len(t, f.listener.invalid, 1)
	assert.Equal(t, uint32(3), f.listener.invalid[0].ImageID)
	assert.Equal(t, 1, f.manager.Pending())
}

func TestUndecodableData(t *testing.T) {
	f := newFixture(t)
	f.run(func() { f.manager.OnImageHeader(3, "alice", types.Square(4)) })
	f.run(func() { f.manager.OnImageData(3, TagImage, []byte("not a jpeg")) })

	assert.Empty(t, f.listener.messages)
	require.Len(t, f.listener.invalid, 1)
	assert.Equal(t, 1, f.manager.Pending())
}

func TestEvictionKeepsEntryAtExactTimeout(t *testing.T) {
	f := newFixture(t)

	f.run(func() { f.manager.OnImageHeader(1, "alice", types.Square(4)) })
	f.advance(2 * time.Minute)

	assert.Equal(t, 1, f.manager.Pending())
}

func TestEvictionIsSelective(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, 4, 4)

	f.run(func() { f.manager.OnImageHeader(1, "alice", types.Square(4)) })
	f.advance(3 * time.Minute)
	f.run(func() { f.manager.OnImageHeader(2, "bob", types.Square(4)) })

	// The sweep at four minutes removes header 1 only.
	f.advance(time.Minute)
	assert.Equal(t, 1, f.manager.Pending())

	f.run(func() { f.manager.OnImageData(1, TagImage, data) })
	assert.Empty(t, f.listener.messages)

	f.run(func() { f.manager.OnImageData(2, TagImage, data) })
	require.Len(t, f.listener.messages, 1)
	assert.Equal(t, uint32(2), f.listener.messages[0].ImageID)
}

func TestEvictionSparesTouchedEntries(t *testing.T) {
	f := newFixture(t)
	data := jpegBytes(t, 4, 4)

	f.run(func() { f.manager.OnImageHeader(1, "alice", types.Square(4)) })
	f.advance(90 * time.Second)
	f.run(func() { f.manager.OnImageData(1, TagThumbnail, data) })
	f.advance(30 * time.Second)

	assert.Equal(t, 1, f.manager.Pending())

	f.run(func() { f.manager.OnImageData(1, TagImage, data) })
	assert.Len(t, f.listener.messages, 2)
}

func TestEvictionRearmsForRemainingEntries(t *testing.T) {
	f := newFixture(t)

	f.run(func() { f.manager.OnImageHeader(1, "alice", types.Square(4)) })
	f.advance(3 * time.Minute)
	f.run(func() { f.manager.OnImageHeader(2, "bob", types.Square(4)) })
	f.advance(time.Minute)
	require.Equal(t, 1, f.manager.Pending())

	f.advance(2 * time.Minute)
	assert.Zero(t, f.manager.Pending())
}

func TestSweepIsDebounced(t *testing.T) {
	f := newFixture(t)
	for i := uint32(0); i < 10; i++ {
		id := i
		f.run(func() { f.manager.OnImageHeader(id, "alice", types.Square(4)) })
	}
	assert.Equal(t, 1, f.clock.Pending())

	f.run(f.manager.Stop)
	assert.Zero(t, f.clock.Pending())
}

func TestDecodesApplyInArrivalOrder(t *testing.T) {
	worker := &deferredWorker{}
	f := newFixtureWith(t, worker, JPEGCodec{})
	data := jpegBytes(t, 20, 10)

	f.run(func() {
		f.manager.OnImageHeader(7, "alice", types.Dimensions{Width: 20, Height: 10})
		f.manager.OnImageData(7, TagThumbnail, data)
		f.manager.OnImageData(7, TagImage, data)
	})
	worker.runReversed()
	f.settle()

	require.Len(t, f.listener.messages, 2)
	assert.NotNil(t, f.listener.messages[0].Thumbnail)
	assert.Nil(t, f.listener.messages[0].Image)
	assert.NotNil(t, f.listener.messages[1].Thumbnail)
	assert.NotNil(t, f.listener.messages[1].Image)
	assert.Zero(t, f.manager.Pending())
}

func TestDecodesApplyInArrivalOrderOnPool(t *testing.T) {
	pool := dispatch.NewPool(4, zerolog.Nop())
	t.Cleanup(pool.Stop)
	f := newFixtureWith(t, pool, JPEGCodec{})
	thumbnail := jpegBytes(t, 8, 4)
	full := jpegBytes(t, 640, 320)

	const images = 20
	f.run(func() {
		for id := uint32(1); id <= images; id++ {
			f.manager.OnImageHeader(id, "alice", types.Dimensions{Width: 640, Height: 320})
			f.manager.OnImageData(id, TagThumbnail, thumbnail)
			f.manager.OnImageData(id, TagImage, full)
		}
	})

	require.Eventually(t, func() bool {
		var n int
		f.run(func() { n = len(f.listener.messages) })
		return n == 2*images
	}, 5*time.Second, 10*time.Millisecond)

	var messages []types.ImageInfo
	f.run(func() { messages = append(messages, f.listener.messages...) })
	for i := 0; i < len(messages); i += 2 {
		assert.Nil(t, messages[i].Image)
		assert.NotNil(t, messages[i+1].Thumbnail, "image %d", messages[i+1].ImageID)
		assert.NotNil(t, messages[i+1].Image)
	}
}

func TestDecodeFailureDoesNotStallLaterChunks(t *testing.T) {
	worker := &deferredWorker{}
	f := newFixtureWith(t, worker, JPEGCodec{})
	data := jpegBytes(t, 4, 4)

	f.run(func() {
		f.manager.OnImageHeader(1, "alice", types.Square(4))
		f.manager.OnImageData(1, TagThumbnail, []byte("garbage"))
		f.manager.OnImageData(1, TagImage, data)
	})
	worker.runReversed()
	f.settle()

	require.Len(t, f.listener.invalid, 1)
	require.Len(t, f.listener.messages, 1)
	assert.NotNil(t, f.listener.messages[0].Image)
}

func TestDecodePanicReportsInvalidData(t *testing.T) {
	f := newFixtureWith(t, inlineWorker{}, panicCodec{})

	f.run(func() { f.manager.OnImageHeader(3, "alice", types.Square(4)) })
	f.run(func() { f.manager.OnImageData(3, TagImage, []byte{0xff}) })

	assert.Empty(t, f.listener.messages)
	require.Len(t, f.listener.invalid, 1)
	assert.Equal(t, "invalid image data", f.listener.invalid[0].Message)
}

func TestSendNilImage(t *testing.T) {
	f := newFixture(t)
	tr := &fakeTransport{}

	var (
		calls  int
		gotErr error
	)
	f.run(func() {
		f.manager.SendImage(nil, tr, "", func(_ uint32, err error) {
			calls++
			gotErr = err
		})
	})

	assert.Equal(t, 1, calls)
	var sendErr *types.SendImageError
	require.ErrorAs(t, gotErr, &sendErr)
	assert.Equal(t, "no image", sendErr.Message)
	assert.Empty(t, tr.log)
}

func TestSendImageCodecPanic(t *testing.T) {
	f := newFixtureWith(t, inlineWorker{}, panicCodec{})
	tr := &fakeTransport{}

	var (
		calls  int
		gotErr error
	)
	f.run(func() {
		f.manager.SendImage(solid(10, 10, color.White), tr, "", func(_ uint32, err error) {
			calls++
			gotErr = err
		})
	})

	assert.Equal(t, 1, calls)
	var sendErr *types.SendImageError
	require.ErrorAs(t, gotErr, &sendErr)
	assert.Empty(t, tr.log)
}
