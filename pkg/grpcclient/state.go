package grpcclient

import (
	"context"

	"google.golang.org/grpc/connectivity"
)

// Channel is the subset of *grpc.ClientConn the client needs to follow the
// transport's connectivity state machine.
type Channel interface {
	GetState() connectivity.State
	WaitForStateChange(ctx context.Context, sourceState connectivity.State) bool
	Connect()
}

// ConnectivityState is the transport-level liveness classification of a
// channel. Shutdown is absorbing; no other ordering is guaranteed.
type ConnectivityState int

const (
	StateConnecting ConnectivityState = iota
	StateReady
	StateIdle
	StateTransientFailure
	StateShutdown
)

func (s ConnectivityState) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateReady:
		return "READY"
	case StateIdle:
		return "IDLE"
	case StateTransientFailure:
		return "TRANSIENT_FAILURE"
	case StateShutdown:
		return "SHUTDOWN"
	default:
		return "UNKNOWN"
	}
}

// fromTransport maps a gRPC connectivity state. ok is false for values the
// client does not recognize.
func fromTransport(s connectivity.State) (state ConnectivityState, ok bool) {
	switch s {
	case connectivity.Connecting:
		return StateConnecting, true
	case connectivity.Ready:
		return StateReady, true
	case connectivity.Idle:
		return StateIdle, true
	case connectivity.TransientFailure:
		return StateTransientFailure, true
	case connectivity.Shutdown:
		return StateShutdown, true
	default:
		return StateConnecting, false
	}
}

// SessionEvent is a session-level event derived from connectivity changes.
type SessionEvent int

const (
	ChannelOpen SessionEvent = iota + 1
	ChannelError
	ChannelClosed
)

func (e SessionEvent) String() string {
	switch e {
	case ChannelOpen:
		return "CHANNEL_OPEN"
	case ChannelError:
		return "CHANNEL_ERROR"
	case ChannelClosed:
		return "CHANNEL_CLOSED"
	default:
		return "NONE"
	}
}

// eventFor returns the session event emitted when a channel enters state.
// Idle and Connecting are waypoints that eventually move to Ready or
// TransientFailure, so they map to no event.
func eventFor(state ConnectivityState) (SessionEvent, bool) {
	switch state {
	case StateReady:
		return ChannelOpen, true
	case StateTransientFailure:
		return ChannelError, true
	case StateShutdown:
		return ChannelClosed, true
	default:
		return 0, false
	}
}

// Event is a session event tagged with the device it refers to.
type Event struct {
	Type     SessionEvent
	DeviceID string
}

// EventSink receives session events. PostEvent must not block.
type EventSink interface {
	PostEvent(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

// PostEvent calls f(ev).
func (f EventSinkFunc) PostEvent(ev Event) {
	f(ev)
}
