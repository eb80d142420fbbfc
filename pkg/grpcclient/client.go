// Package grpcclient implements the device-independent half of a gRPC
// device client: connectivity tracking, the cancellable session and the
// serialized executor every RPC to the device goes through.
package grpcclient

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/newtron-network/p4rt/pkg/util"
)

// Client is the session with one device over one gRPC channel.
//
// The channel is owned by the caller; Shutdown does not close it. Closing
// the channel moves it to SHUTDOWN, which ends connectivity tracking after a
// final ChannelClosed event.
type Client struct {
	deviceID   string
	channel    Channel
	persistent bool
	sink       EventSink
	cfg        Config

	channelOpen atomic.Bool

	session *Session
	pool    *workerPool
	gate    *semaphore.Weighted

	stopWatch context.CancelFunc
	watchDone chan struct{}
}

// NewClient creates a client for deviceID on channel and starts tracking
// the channel's connectivity. With persistent set, an IDLE channel is asked
// to reconnect instead of being left idle. Session events are posted to
// sink, which may be nil.
func NewClient(deviceID string, channel Channel, persistent bool, sink EventSink, cfg Config) *Client {
	cfg = cfg.withDefaults()
	pool := newWorkerPool(cfg.PoolSize)

	c := &Client{
		deviceID:   deviceID,
		channel:    channel,
		persistent: persistent,
		sink:       sink,
		cfg:        cfg,
		session:    newSession(deviceID, pool, cfg.ShutdownGrace),
		pool:       pool,
		gate:       semaphore.NewWeighted(1),
		watchDone:  make(chan struct{}),
	}

	watchCtx, stop := context.WithCancel(context.Background())
	c.stopWatch = stop
	go c.watchConnectivity(watchCtx)

	return c
}

// DeviceID returns the identifier of the device this client talks to.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// Session returns the cancellation scope of this client.
func (c *Client) Session() *Session {
	return c.session
}

// IsChannelOpen reports whether the last connectivity edge seen was an open.
func (c *Client) IsChannelOpen() bool {
	return c.channelOpen.Load()
}

// IsServerReachable reports whether the channel is READY or IDLE.
func (c *Client) IsServerReachable() bool {
	raw := c.channel.GetState()
	state, ok := fromTransport(raw)
	if !ok {
		util.WithDevice(c.deviceID).Errorf("Unrecognized channel connectivity state %v", raw)
		return false
	}
	switch state {
	case StateReady, StateIdle:
		return true
	default:
		return false
	}
}

// Shutdown terminates the session. See Session.Shutdown.
func (c *Client) Shutdown() <-chan struct{} {
	return c.session.Shutdown()
}

// StopWatching ends connectivity tracking without waiting for the channel to
// shut down, and waits for the tracking goroutine to exit.
func (c *Client) StopWatching() {
	c.stopWatch()
	<-c.watchDone
}
