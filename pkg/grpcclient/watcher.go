package grpcclient

import (
	"context"

	"google.golang.org/grpc/connectivity"

	"github.com/newtron-network/p4rt/pkg/util"
)

// watchConnectivity follows the channel's state machine until the channel
// reaches SHUTDOWN, which it never leaves, or until ctx is cancelled. Each
// change is handled before waiting for the next one, so events for a device
// are strictly ordered.
func (c *Client) watchConnectivity(ctx context.Context) {
	defer close(c.watchDone)

	source := connectivity.Connecting
	for {
		if util.TraceEnabled() {
			util.WithDevice(c.deviceID).Tracef("Waiting for channel state change from %v...", source)
		}
		if !c.channel.WaitForStateChange(ctx, source) {
			return
		}

		newState := c.channel.GetState()
		c.handleStateChange(newState)

		if newState == connectivity.Shutdown {
			return
		}
		source = newState
	}
}

func (c *Client) handleStateChange(raw connectivity.State) {
	log := util.WithDevice(c.deviceID)

	state, ok := fromTransport(raw)
	if !ok {
		log.Errorf("Unrecognized connectivity state %v", raw)
	}
	if util.TraceEnabled() {
		log.Tracef("Detected channel connectivity change, new state is %v", state)
	}

	if state == StateIdle && c.persistent {
		log.Debug("Forcing channel to exit state IDLE...")
		c.channel.Connect()
	}

	eventType, ok := eventFor(state)
	if !ok {
		return
	}

	// Edge-triggered: a repeated open or not-open value posts nothing.
	present := eventType == ChannelOpen
	if past := c.channelOpen.Swap(present); past == present {
		return
	}
	log.Debugf("Notifying event %v", eventType)
	if c.sink != nil {
		c.sink.PostEvent(Event{Type: eventType, DeviceID: c.deviceID})
	}
}
