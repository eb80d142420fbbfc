// Package p4runtime implements a per-device P4Runtime client on top of
// grpcclient: pipeline configuration push and verification, election ids,
// and a controller that owns one client per device.
package p4runtime

import (
	"sync"
	"sync/atomic"
	"time"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/pipeconf"
	"github.com/newtron-network/p4rt/pkg/util"
)

// Default RPC timeouts.
const (
	DefaultShortTimeout = 10 * time.Second
	DefaultLongTimeout  = 60 * time.Second
)

// Timeouts are the RPC deadline classes. Short is for small requests such
// as a cookie-only read; Long is for requests carrying a full pipeline.
type Timeouts struct {
	Short time.Duration
	Long  time.Duration
}

// DefaultTimeouts returns the default RPC deadlines.
func DefaultTimeouts() Timeouts {
	return Timeouts{Short: DefaultShortTimeout, Long: DefaultLongTimeout}
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Short <= 0 {
		t.Short = DefaultShortTimeout
	}
	if t.Long <= 0 {
		t.Long = DefaultLongTimeout
	}
	return t
}

// ErrorObserver is notified of every RPC error reported through
// HandleRPCError.
type ErrorObserver func(err *util.RPCError)

// Conn is the transport a Client needs: connectivity tracking plus unary
// invocation. *grpc.ClientConn satisfies it.
type Conn interface {
	grpcclient.Channel
	grpc.ClientConnInterface
}

// Options configure a Client.
type Options struct {
	// P4DeviceID is the P4Runtime device_id sent in every request.
	P4DeviceID uint64

	// Persistent asks an idle channel to reconnect.
	Persistent bool

	Timeouts Timeouts
	Exec     grpcclient.Config

	// Resolver maps pipeconfs to P4Info. Defaults to a pipeconf.Helper.
	Resolver pipeconf.Resolver

	// Sink receives session events. May be nil.
	Sink grpcclient.EventSink

	// OnError is called after an RPC error has been logged. May be nil.
	OnError ErrorObserver
}

// Client is a P4Runtime client for one device.
type Client struct {
	*grpcclient.Client

	stub       p4v1.P4RuntimeClient
	p4DeviceID uint64
	timeouts   Timeouts
	resolver   pipeconf.Resolver
	onError    ErrorObserver

	electionID atomic.Pointer[p4v1.Uint128]

	noCookieOnce sync.Once
}

// NewClient creates a client for deviceID over conn. The client does not
// take ownership of conn.
func NewClient(deviceID string, conn Conn, opts Options) *Client {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = pipeconf.NewHelper()
	}
	c := &Client{
		Client:     grpcclient.NewClient(deviceID, conn, opts.Persistent, opts.Sink, opts.Exec),
		stub:       p4v1.NewP4RuntimeClient(conn),
		p4DeviceID: opts.P4DeviceID,
		timeouts:   opts.Timeouts.withDefaults(),
		resolver:   resolver,
		onError:    opts.OnError,
	}
	c.electionID.Store(&p4v1.Uint128{})
	return c
}

// P4DeviceID returns the P4Runtime device_id of this client.
func (c *Client) P4DeviceID() uint64 {
	return c.p4DeviceID
}

// IsSessionOpen reports whether requests can be sent: the channel is open
// and the client has not been shut down.
func (c *Client) IsSessionOpen() bool {
	return c.IsChannelOpen() && !c.Session().IsShutdown()
}

// SetElectionID sets the election id sent with write requests.
func (c *Client) SetElectionID(id *p4v1.Uint128) {
	if id == nil {
		id = &p4v1.Uint128{}
	}
	c.electionID.Store(id)
}

// LastUsedElectionID returns the election id sent with write requests.
func (c *Client) LastUsedElectionID() *p4v1.Uint128 {
	return c.electionID.Load()
}

// HandleRPCError logs a failed RPC with its status code and notifies the
// error observer. It never propagates the error.
func (c *Client) HandleRPCError(err error, operation string) {
	rpcErr := util.NewRPCError(operation, c.DeviceID(), err)
	util.WithOperation(c.DeviceID(), operation).
		WithField("code", rpcErr.Code.String()).
		Warnf("Error during %s on %s: %s", operation, c.DeviceID(), status.Convert(err).Message())
	if c.onError != nil {
		c.onError(rpcErr)
	}
}
