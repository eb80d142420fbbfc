package grpcclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newtron-network/p4rt/pkg/util"
)

func TestShutdown_Idempotent(t *testing.T) {
	c, _, _ := newTestClient(t, false, Config{})

	first := c.Shutdown()
	waitClosed(t, first, "first shutdown")

	if !c.Session().IsShutdown() {
		t.Fatal("IsShutdown() = false after shutdown")
	}
	if cause := context.Cause(c.Session().Context()); !errors.Is(cause, util.ErrSessionShutdown) {
		t.Errorf("cause = %v, want ErrSessionShutdown", cause)
	}

	second := c.Shutdown()
	select {
	case <-second:
	default:
		t.Fatal("second Shutdown() did not complete immediately")
	}
}

func TestShutdown_BoundedByGracePeriod(t *testing.T) {
	c, _, _ := newTestClient(t, false, Config{ShutdownGrace: 30 * time.Millisecond})

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	Submit(c, "stuck", func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	waitClosed(t, started, "operation start")

	start := time.Now()
	waitClosed(t, c.Shutdown(), "shutdown")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %s, want about the grace period", elapsed)
	}
}

func TestRunInScope(t *testing.T) {
	c, _, _ := newTestClient(t, false, Config{})

	var seen context.Context
	err := c.Session().RunInScope(func(ctx context.Context) error {
		seen = ctx
		return nil
	})
	if err != nil {
		t.Fatalf("RunInScope() error = %v", err)
	}

	waitClosed(t, c.Shutdown(), "shutdown")
	if seen.Err() == nil {
		t.Error("scope context not cancelled by shutdown")
	}

	called := false
	err = c.Session().RunInScope(func(ctx context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, util.ErrSessionShutdown) {
		t.Errorf("RunInScope() after shutdown error = %v, want ErrSessionShutdown", err)
	}
	if called {
		t.Error("work ran after shutdown")
	}
}

func TestWorkerPool_QueuedTasksSeeCancelledContext(t *testing.T) {
	p := newWorkerPool(1)

	release := make(chan struct{})
	started := make(chan struct{})
	if err := p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	waitClosed(t, started, "first task")

	queuedErr := make(chan error, 1)
	if err := p.Submit(func(ctx context.Context) { queuedErr <- ctx.Err() }); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	p.shutdownNow()
	select {
	case err := <-queuedErr:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("queued task ctx.Err() = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("queued task never ran")
	}

	if err := p.Submit(func(context.Context) {}); !errors.Is(err, util.ErrSessionShutdown) {
		t.Errorf("Submit() after shutdown error = %v, want ErrSessionShutdown", err)
	}

	if p.awaitTermination(10 * time.Millisecond) {
		t.Error("awaitTermination() = true while a task is still running")
	}
	close(release)
	if !p.awaitTermination(5 * time.Second) {
		t.Error("awaitTermination() = false after all tasks returned")
	}
}
