package grpcclient

import (
	"context"
	"fmt"

	"google.golang.org/grpc/status"

	"github.com/newtron-network/p4rt/pkg/util"
)

// Submit runs op on the client's worker pool once it holds the request lock,
// so at most one operation per device executes at a time. op receives a
// context that shutdown does not cancel; use it for work that must not be
// interrupted half way.
//
// The returned future fails with util.ErrSessionShutdown if the client is
// already shut down, util.ErrLockTimeout if the lock could not be taken in
// time, util.ErrLockInterrupted if shutdown happened while waiting, or an
// *util.OperationError if op itself failed.
func Submit[T any](c *Client, description string, op func(ctx context.Context) (T, error)) *Future[T] {
	return execute(c, description, false, op)
}

// SubmitInScope is Submit with op bound to the session scope: shutting the
// session down cancels the context op receives. This is the variant for
// network calls.
func SubmitInScope[T any](c *Client, description string, op func(ctx context.Context) (T, error)) *Future[T] {
	return execute(c, description, true, op)
}

func execute[T any](c *Client, description string, scoped bool, op func(ctx context.Context) (T, error)) *Future[T] {
	if c.session.IsShutdown() {
		return Failed[T](fmt.Errorf("%s: client has been shut down: %w", description, util.ErrSessionShutdown))
	}

	future := NewFuture[T]()
	err := c.pool.Submit(func(poolCtx context.Context) {
		if err := c.acquire(poolCtx, description); err != nil {
			future.Fail(err)
			return
		}
		defer c.gate.Release(1)

		opCtx := context.WithoutCancel(c.session.Context())
		if scoped {
			opCtx = c.session.Context()
		}
		v, err := runOperation(c, opCtx, description, op)
		if err != nil {
			future.Fail(err)
			return
		}
		future.Complete(v)
	})
	if err != nil {
		return Failed[T](fmt.Errorf("%s: %w", description, err))
	}
	return future
}

// acquire takes the request lock, waiting at most LockTimeout. ctx is the
// pool context, cancelled on shutdown.
func (c *Client) acquire(ctx context.Context, description string) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.cfg.LockTimeout)
	defer cancel()

	if err := c.gate.Acquire(waitCtx, 1); err != nil {
		log := util.WithOperation(c.deviceID, description)
		if ctx.Err() != nil {
			log.Warnf("Interrupted while waiting for lock (executing %s)", description)
			cause := c.session.cause()
			if cause == nil {
				cause = ctx.Err()
			}
			return fmt.Errorf("%w (executing %s): %w", util.ErrLockInterrupted, description, cause)
		}
		log.Errorf("LOCK TIMEOUT! This is likely a deadlock, please debug (executing %s)", description)
		return fmt.Errorf("%w after %s (executing %s)", util.ErrLockTimeout, c.cfg.LockTimeout, description)
	}
	return nil
}

func runOperation[T any](c *Client, ctx context.Context, description string, op func(ctx context.Context) (T, error)) (v T, err error) {
	log := util.WithOperation(c.deviceID, description)
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic in client of %s, executing %s: %v", c.deviceID, description, r)
			err = util.NewOperationError(description, c.deviceID, fmt.Errorf("panic: %v", r))
		}
	}()

	v, err = op(ctx)
	if err == nil {
		return v, nil
	}
	if _, isStatus := status.FromError(err); isStatus {
		log.Warnf("Unable to execute %s on %s: %v", description, c.deviceID, err)
	} else {
		log.Errorf("Exception in client of %s, executing %s: %v", c.deviceID, description, err)
	}
	return v, util.NewOperationError(description, c.deviceID, err)
}
