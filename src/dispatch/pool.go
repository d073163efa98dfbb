package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Worker runs CPU-bound work off the loop.
type Worker interface {
	Go(fn func())
}

// Pool is a bounded set of background goroutines for image scaling,
// compression, decoding and geocoding.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger zerolog.Logger
}

// NewPool creates a pool that runs at most size jobs at a time.
func NewPool(size int, logger zerolog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("component", "pool").Logger(),
	}
}

// Go schedules fn. Jobs queued after Stop never run.
func (p *Pool) Go(fn func()) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			return
		}
		defer p.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error().Interface("panic", r).Msg("job panicked")
			}
		}()
		fn()
	}()
}

// Wait blocks until all scheduled jobs have finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Stop cancels jobs still waiting for a slot and waits for running ones.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}
