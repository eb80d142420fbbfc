package grpcclient

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/grpc/connectivity"
)

// scriptedChannel delivers connectivity transitions one at a time. Each value
// sent on next is observed by exactly one WaitForStateChange call, so tests
// control the exact sequence the watcher sees.
type scriptedChannel struct {
	mu       sync.Mutex
	state    connectivity.State
	next     chan connectivity.State
	connects atomic.Int32
}

func newScriptedChannel(initial connectivity.State) *scriptedChannel {
	return &scriptedChannel{state: initial, next: make(chan connectivity.State)}
}

func (s *scriptedChannel) GetState() connectivity.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *scriptedChannel) WaitForStateChange(ctx context.Context, _ connectivity.State) bool {
	select {
	case st := <-s.next:
		s.mu.Lock()
		s.state = st
		s.mu.Unlock()
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *scriptedChannel) Connect() {
	s.connects.Add(1)
}

// push delivers states in order, failing the test if the watcher stops
// consuming them.
func (s *scriptedChannel) push(t *testing.T, states ...connectivity.State) {
	t.Helper()
	for _, st := range states {
		select {
		case s.next <- st:
		case <-time.After(5 * time.Second):
			t.Fatalf("watcher did not consume state %v", st)
		}
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) PostEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) types() []SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SessionEvent, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestClient(t *testing.T, persistent bool, cfg Config) (*Client, *scriptedChannel, *eventRecorder) {
	t.Helper()
	ch := newScriptedChannel(connectivity.Idle)
	rec := &eventRecorder{}
	c := NewClient("device:leaf1", ch, persistent, rec, cfg)
	t.Cleanup(func() {
		c.StopWatching()
		<-c.Shutdown()
	})
	return c, ch, rec
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
