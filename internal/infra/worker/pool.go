// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Pool supervises the per-requester workers. It is not a fixed-size pool: every activation
// gets its own goroutine, and Stop waits for all of them.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	log    *zerolog.Logger
}

func NewPool(log *zerolog.Logger) *Pool {
	return &Pool{log: log}
}

// Go runs fn for handle h. It reports false once the pool is stopped.
func (p *Pool) Go(ctx context.Context, h *Handle, fn func(ctx context.Context, h *Handle)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.log.Error().Interface("panic", r).Int64("tg_id", h.RequesterID).Msg("worker crashed")
			}
		}()
		fn(ctx, h)
	}()
	return true
}

// Stop refuses new workers and waits for running ones, or until ctx ends.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
