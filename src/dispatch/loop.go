package dispatch

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/orchestra-mcp/channel/src/clock"
	"github.com/rs/zerolog"
)

// Executor is the designated single-threaded context. Every task posted to
// it runs on one goroutine, one at a time, in post order.
type Executor interface {
	// Post queues fn. It never blocks and is safe to call from fn itself.
	Post(fn func())

	// PostDelayed queues fn after d. The returned func cancels it; once
	// cancel returns, fn is guaranteed not to run.
	PostDelayed(d time.Duration, fn func()) (cancel func())
}

// Loop is the Executor used by sessions. State owned by the loop needs no
// locks as long as it is only touched from posted tasks.
type Loop struct {
	clock  clock.Clock
	logger zerolog.Logger

	owner atomic.Uint64

	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	done   chan struct{}
	closed bool
}

// NewLoop creates a loop. Call Run in a goroutine to start it.
func NewLoop(c clock.Clock, logger zerolog.Logger) *Loop {
	return &Loop{
		clock:  c,
		logger: logger.With().Str("component", "loop").Logger(),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Run processes tasks until Stop is called.
func (l *Loop) Run() {
	l.owner.Store(goroutineID())
	for {
		select {
		case <-l.wake:
			for {
				fn, ok := l.next()
				if !ok {
					break
				}
				l.runTask(fn)
			}
		case <-l.done:
			return
		}
	}
}

// Stop halts the loop. Tasks still queued are dropped.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		l.queue = nil
		close(l.done)
	}
}

// Post queues fn for execution on the loop goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// PostDelayed queues fn once d has elapsed on the loop's clock.
func (l *Loop) PostDelayed(d time.Duration, fn func()) func() {
	var cancelled atomic.Bool
	timer := l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if !cancelled.Load() {
				fn()
			}
		})
	})
	return func() {
		cancelled.Store(true)
		timer.Stop()
	}
}

// Flush blocks until every task posted before the call has run. It must
// not be called from the loop goroutine.
func (l *Loop) Flush() {
	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-l.done:
	}
}

// OnLoop reports whether the caller is running on the loop goroutine.
func (l *Loop) OnLoop() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goroutineID()
}

// Call runs fn on the loop and waits for it to return. On the loop goroutine
// fn runs inline. It returns false, possibly without running fn, once the
// loop has stopped.
func (l *Loop) Call(fn func()) bool {
	if l.OnLoop() {
		fn()
		return true
	}
	ran := make(chan struct{})
	l.Post(func() {
		defer close(ran)
		fn()
	})
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Interface("panic", r).Msg("task panicked")
		}
	}()
	fn()
}

// goroutineID parses the current goroutine's id from its stack header,
// which reads "goroutine 18 [running]:".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(header, ' '); i > 0 {
		header = header[:i]
	}
	id, err := strconv.ParseUint(string(header), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
