package platform

import (
	"sync"

	"github.com/rs/zerolog"
)

// InitFunc prepares process-wide native dependencies such as audio codecs.
type InitFunc func() error

// Guard runs an InitFunc at most once per process and remembers the
// outcome. A failed initialization is never retried.
type Guard struct {
	once sync.Once
	init InitFunc
	err  error
}

// NewGuard creates a Guard for init. A nil init always succeeds.
func NewGuard(init InitFunc) *Guard {
	return &Guard{init: init}
}

// Ensure runs the initializer on first use and returns its result.
func (g *Guard) Ensure(logger zerolog.Logger) error {
	g.once.Do(func() {
		if g.init == nil {
			return
		}
		g.err = g.init()
		if g.err != nil {
			logger.Error().Err(g.err).Msg("platform initialization failed")
			return
		}
		logger.Debug().Msg("platform initialized")
	})
	return g.err
}

var (
	defaultMu    sync.Mutex
	defaultGuard = NewGuard(nil)
)

// Default returns the process-wide guard used by sessions.
func Default() *Guard {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultGuard
}

// SetDefault replaces the process-wide guard. It affects sessions built
// afterwards.
func SetDefault(g *Guard) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultGuard = g
}
