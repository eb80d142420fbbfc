// Package util provides logging helpers and common error types.
package util

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sentinel errors for structural failures. These are the only failures that
// propagate to callers of protocol operations; everything else is reported
// through logs and folded into the boolean result.
var (
	ErrSessionShutdown    = errors.New("session shutdown requested")
	ErrLockTimeout        = errors.New("request lock timeout")
	ErrLockInterrupted    = errors.New("interrupted while waiting for request lock")
	ErrPipeconfUnresolved = errors.New("pipeconf could not be resolved")
	ErrNoClient           = errors.New("no client for device")
	ErrClientExists       = errors.New("client already exists for device")
)

// RPCError is a transport or RPC failure observed on a device session.
type RPCError struct {
	Operation string
	Device    string
	Code      codes.Code
	Err       error
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s on %s failed (%s): %v", e.Operation, e.Device, e.Code, e.Err)
}

func (e *RPCError) Unwrap() error {
	return e.Err
}

// NewRPCError builds an RPCError, extracting the gRPC status code from err.
// Errors that carry no status map to codes.Unknown.
func NewRPCError(operation, device string, err error) *RPCError {
	return &RPCError{
		Operation: operation,
		Device:    device,
		Code:      status.Code(err),
		Err:       err,
	}
}

// OperationError is returned when an operation run by the serialized
// executor of a device fails.
type OperationError struct {
	Operation string
	Device    string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("executing %s on %s: %v", e.Operation, e.Device, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// NewOperationError creates an operation error
func NewOperationError(operation, device string, err error) *OperationError {
	return &OperationError{
		Operation: operation,
		Device:    device,
		Err:       err,
	}
}

// IsStructural reports whether err is one of the failures that callers see
// as hard errors rather than as a false/absent result.
func IsStructural(err error) bool {
	return errors.Is(err, ErrSessionShutdown) ||
		errors.Is(err, ErrLockTimeout) ||
		errors.Is(err, ErrLockInterrupted)
}
