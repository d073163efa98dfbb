package clock

import "time"

// Clock abstracts time so that timers in the session, the image cache and
// the location manager can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f after d elapses. The returned Timer cancels the
	// pending call with Stop.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the timer from firing. It reports whether the call
// stopped the timer, false if it already fired or was stopped.
func (t *Timer) Stop() bool { return t.stopFunc() }

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	t := time.AfterFunc(d, f)
	return &Timer{stopFunc: t.Stop}
}
