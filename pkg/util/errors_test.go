package util

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestRPCError(t *testing.T) {
	cause := status.Error(codes.Unavailable, "connection refused")
	err := NewRPCError("GET-pipeline-config", "device:leaf1", cause)

	if err.Code != codes.Unavailable {
		t.Errorf("Code = %v, want Unavailable", err.Code)
	}
	msg := err.Error()
	for _, want := range []string{"GET-pipeline-config", "device:leaf1", "Unavailable"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !errors.Is(err, cause) {
		t.Error("RPCError should unwrap to its cause")
	}
}

func TestRPCError_PlainError(t *testing.T) {
	err := NewRPCError("SET-pipeline-config", "leaf1", errors.New("boom"))
	if err.Code != codes.Unknown {
		t.Errorf("Code = %v, want Unknown", err.Code)
	}
}

func TestOperationError(t *testing.T) {
	err := NewOperationError("GET-pipeline-config", "leaf1", ErrLockTimeout)
	if !errors.Is(err, ErrLockTimeout) {
		t.Error("OperationError should unwrap to its cause")
	}
	var opErr *OperationError
	if !errors.As(fmt.Errorf("wrapped: %w", err), &opErr) {
		t.Fatal("errors.As() did not find OperationError")
	}
	if opErr.Device != "leaf1" {
		t.Errorf("Device = %q, want %q", opErr.Device, "leaf1")
	}
}

func TestIsStructural(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"shutdown", ErrSessionShutdown, true},
		{"lock timeout", NewOperationError("op", "leaf1", ErrLockTimeout), true},
		{"interrupted", fmt.Errorf("%w (executing op): %w", ErrLockInterrupted, ErrSessionShutdown), true},
		{"rpc", NewRPCError("op", "leaf1", status.Error(codes.Internal, "x")), false},
		{"pipeconf", ErrPipeconfUnresolved, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsStructural(tt.err); got != tt.want {
				t.Errorf("IsStructural() = %v, want %v", got, tt.want)
			}
		})
	}
}
