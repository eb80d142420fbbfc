package grpcclient

import (
	"context"
	"sync"
	"time"

	"github.com/newtron-network/p4rt/pkg/util"
)

// Session is the cancellation scope of a device session. Every cancellable
// RPC runs with the session context, so a single Shutdown cancels all of
// them. Once cancelled a session is never reopened.
type Session struct {
	deviceID string
	ctx      context.Context
	cancel   context.CancelCauseFunc
	pool     *workerPool
	grace    time.Duration

	mu       sync.Mutex
	shutdown bool
}

func newSession(deviceID string, pool *workerPool, grace time.Duration) *Session {
	ctx, cancel := context.WithCancelCause(context.Background())
	return &Session{
		deviceID: deviceID,
		ctx:      ctx,
		cancel:   cancel,
		pool:     pool,
		grace:    grace,
	}
}

// Context returns the session scope. Its cause after shutdown is
// util.ErrSessionShutdown.
func (s *Session) Context() context.Context {
	return s.ctx
}

// IsShutdown reports whether the scope has been cancelled.
func (s *Session) IsShutdown() bool {
	return s.ctx.Err() != nil
}

// Shutdown cancels the scope and stops the worker pool before returning,
// then waits in the background up to the grace period for running work to
// drain. The returned channel is closed when the drain wait is over.
// Calling Shutdown again is a no-op that returns an already-closed channel.
func (s *Session) Shutdown() <-chan struct{} {
	done := make(chan struct{})

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		util.WithDevice(s.deviceID).Warn("Session already shut down, ignoring request")
		close(done)
		return done
	}
	s.shutdown = true
	s.mu.Unlock()

	log := util.WithDevice(s.deviceID)
	log.Warn("Shutting down session...")
	s.cancel(util.ErrSessionShutdown)
	s.pool.shutdownNow()

	go func() {
		defer close(done)
		if !s.pool.awaitTermination(s.grace) {
			log.Warnf("Worker pool did not drain within %s", s.grace)
		}
	}()
	return done
}

// RunInScope runs work with the session context. Cancelling the session
// cancels work if work honours its context.
func (s *Session) RunInScope(work func(ctx context.Context) error) error {
	if s.IsShutdown() {
		return util.ErrSessionShutdown
	}
	return work(s.ctx)
}

// cause returns why the session context ended, or nil if it has not.
func (s *Session) cause() error {
	return context.Cause(s.ctx)
}
