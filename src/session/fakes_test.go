package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/orchestra-mcp/channel/src/dispatch"
	"github.com/orchestra-mcp/channel/src/platform"
	"github.com/orchestra-mcp/channel/src/transport"
	"github.com/orchestra-mcp/channel/src/types"
	"github.com/orchestra-mcp/channel/src/voice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type sentCommand struct {
	name string
	body types.Payload
	ack  transport.SendAck
}

// fakeTransport records what the session does with it. Tests drive its
// events through the session loop.
type fakeTransport struct {
	mu           sync.Mutex
	connectErr   error
	events       transport.Events
	address      string
	timeout      time.Duration
	sent         []sentCommand
	imageFrames  int
	disconnected bool
}

func (f *fakeTransport) Connect(events transport.Events, address string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.events = events
	f.address = address
	f.timeout = timeout
	return nil
}

func (f *fakeTransport) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeTransport) Send(name string, body types.Payload, ack transport.SendAck) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCommand{name: name, body: body, ack: ack})
}

func (f *fakeTransport) SendVoiceStreamData(uint32, []byte) {}

func (f *fakeTransport) SendImageData(uint32, uint32, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageFrames++
}

func (f *fakeTransport) lastSent(t *testing.T, name string) sentCommand {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].name == name {
			return f.sent[i]
		}
	}
	require.Failf(t, "command not sent", "%s", name)
	return sentCommand{}
}

func (f *fakeTransport) sentNamed(name string) []sentCommand {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentCommand
	for _, c := range f.sent {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) isDisconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

// fakeFactory hands out fakeTransports and keeps them.
type fakeFactory struct {
	mu         sync.Mutex
	created    []*fakeTransport
	connectErr error
}

func (f *fakeFactory) New() transport.Transport {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTransport{connectErr: f.connectErr}
	f.created = append(f.created, t)
	return t
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) last(t *testing.T) *fakeTransport {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.created)
	return f.created[len(f.created)-1]
}

// recordingListener logs every callback by name.
type recordingListener struct {
	BaseListener

	allowReconnect bool
	events         []string
	connectErrs    []*types.ConnectError
	errs           []error
	texts          [][2]string
	locations      []types.Location
	images         []types.ImageInfo
	reconnects     []ReconnectReason
	voiceConfig    *voice.IncomingConfig
}

func (l *recordingListener) OnConnectStarted(*Session)   { l.events = append(l.events, "connect-started") }
func (l *recordingListener) OnConnectSucceeded(*Session) { l.events = append(l.events, "connect-succeeded") }
func (l *recordingListener) OnDisconnected(*Session)     { l.events = append(l.events, "disconnected") }
func (l *recordingListener) OnChannelStatusUpdate(*Session) {
	l.events = append(l.events, "channel-status")
}

func (l *recordingListener) OnConnectFailed(_ *Session, err *types.ConnectError) {
	l.events = append(l.events, "connect-failed")
	l.connectErrs = append(l.connectErrs, err)
}

func (l *recordingListener) OnSessionWillReconnect(_ *Session, reason ReconnectReason) bool {
	l.events = append(l.events, "will-reconnect")
	l.reconnects = append(l.reconnects, reason)
	return l.allowReconnect
}

func (l *recordingListener) OnTextMessage(_ *Session, message, sender string) {
	l.texts = append(l.texts, [2]string{sender, message})
}

func (l *recordingListener) OnImageMessage(_ *Session, info types.ImageInfo) {
	l.images = append(l.images, info)
}

func (l *recordingListener) OnLocationMessage(_ *Session, sender string, loc types.Location) {
	l.locations = append(l.locations, loc)
}

func (l *recordingListener) OnError(_ *Session, err error) {
	l.errs = append(l.errs, err)
}

func (l *recordingListener) OnIncomingVoiceWillStart(*Session, voice.IncomingInfo) *voice.IncomingConfig {
	return l.voiceConfig
}

func (l *recordingListener) OnIncomingVoiceStarted(*Session, *voice.IncomingStream) {
	l.events = append(l.events, "voice-in-started")
}

func (l *recordingListener) OnVoiceStopped(*Session, voice.Stream) {
	l.events = append(l.events, "voice-stopped")
}

type fixture struct {
	t        *testing.T
	session  *Session
	clock    *clock.FakeClock
	factory  *fakeFactory
	listener *recordingListener
}

const testAddress = "wss://channels.example.com/ws"

func newFixture(t *testing.T, configure ...func(*Builder)) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		clock:    clock.Fake(time.Unix(1_700_000_000, 0)),
		factory:  &fakeFactory{},
		listener: &recordingListener{},
	}
	b := NewBuilder(testAddress, "auth-token", "test-channel").
		WithLogger(zerolog.Nop()).
		WithClock(f.clock).
		WithRandom(func() float64 { return 0.5 }).
		WithPlatformGuard(platform.NewGuard(nil)).
		WithListener(f.listener).
		WithTransportFactory(func(dispatch.Executor) transport.Factory { return f.factory })
	for _, c := range configure {
		c(b)
	}
	f.session = b.Build()
	t.Cleanup(f.session.Close)
	return f
}

// settle waits for the loop to run everything queued, including tasks
// those tasks post.
func (f *fixture) settle() {
	for i := 0; i < 4; i++ {
		f.session.loop.Flush()
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
	f.settle()
}

// fire delivers a transport event on the loop.
func (f *fixture) fire(tr *fakeTransport, fn func(transport.Events)) {
	f.session.loop.Post(func() { fn(tr.events) })
	f.settle()
}

func (f *fixture) ack(sent sentCommand, response types.Payload) {
	f.session.loop.Post(func() { sent.ack(response) })
	f.settle()
}

func (f *fixture) command(tr *fakeTransport, name string, payload types.Payload) {
	f.fire(tr, func(ev transport.Events) { ev.OnIncomingCommand(name, payload, nil) })
}

// connect drives a session to Connected and returns its transport.
func (f *fixture) connect(refreshToken string) *fakeTransport {
	f.t.Helper()
	require.True(f.t, f.session.Connect())
	f.settle()
	tr := f.factory.last(f.t)
	f.fire(tr, func(ev transport.Events) { ev.OnConnectSucceeded() })
	f.ack(tr.lastSent(f.t, "logon"), types.Payload{"success": true, "refresh_token": refreshToken})
	require.Equal(f.t, Connected, f.session.State())
	return tr
}

var errDial = errors.New("dial refused")
