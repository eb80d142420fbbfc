package grpcclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/newtron-network/p4rt/pkg/util"
)

// workerPool runs tasks off the caller's goroutine with at most size tasks
// executing at once. Submit never blocks: a task waits for a slot on its own
// goroutine.
type workerPool struct {
	slots  *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newWorkerPool(size int) *workerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &workerPool{
		slots:  semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules task. Tasks still waiting for a slot when the pool is shut
// down run immediately with an already-cancelled context, so they can fail
// whatever result they own instead of leaving it unresolved.
func (p *workerPool) Submit(task func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return util.ErrSessionShutdown
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		if err := p.slots.Acquire(p.ctx, 1); err != nil {
			task(p.ctx)
			return
		}
		defer p.slots.Release(1)
		task(p.ctx)
	}()
	return nil
}

// shutdownNow stops accepting tasks and cancels the context seen by queued
// and running tasks.
func (p *workerPool) shutdownNow() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
}

// awaitTermination waits up to timeout for every submitted task to return.
func (p *workerPool) awaitTermination(timeout time.Duration) bool {
	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-drained:
		return true
	case <-timer.C:
		return false
	}
}
