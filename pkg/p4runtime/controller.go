package p4runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/newtron-network/p4rt/pkg/election"
	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/pipeconf"
	"github.com/newtron-network/p4rt/pkg/tunnel"
	"github.com/newtron-network/p4rt/pkg/util"
)

// DefaultEventQueueSize is the controller's event buffer when
// ControllerOptions.EventQueueSize is zero.
const DefaultEventQueueSize = 256

// Target describes how to reach one device.
type Target struct {
	DeviceID   string
	Address    string
	P4DeviceID uint64
	Persistent bool

	// SSH, when set, reaches Address through an SSH tunnel.
	SSH *tunnel.Config

	Timeouts Timeouts
	Exec     grpcclient.Config
}

// Listener receives session events from every managed device.
type Listener func(ev grpcclient.Event)

// ControllerOptions configure a Controller.
type ControllerOptions struct {
	// Store allocates election ids. Nil leaves the id at zero.
	Store election.Store

	// Resolver is shared by all clients. Defaults to a pipeconf.Helper.
	Resolver pipeconf.Resolver

	// DialOptions are appended to the controller's defaults.
	DialOptions []grpc.DialOption

	EventQueueSize int

	OnError ErrorObserver
}

type managed struct {
	client *Client
	conn   *grpc.ClientConn
	tunnel *tunnel.Tunnel
}

// Controller owns one Client per device and fans their session events out
// to listeners on a single dispatch goroutine.
type Controller struct {
	opts ControllerOptions

	mu      sync.Mutex
	clients map[string]*managed
	pending map[string]bool

	lmu       sync.RWMutex
	listeners map[int]Listener
	nextID    int

	events chan grpcclient.Event
	done   chan struct{}
	wg     sync.WaitGroup
	closed sync.Once
}

// NewController creates a controller and starts its event dispatcher.
func NewController(opts ControllerOptions) *Controller {
	if opts.Resolver == nil {
		opts.Resolver = pipeconf.NewHelper()
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = DefaultEventQueueSize
	}

	c := &Controller{
		opts:      opts,
		clients:   make(map[string]*managed),
		pending:   make(map[string]bool),
		listeners: make(map[int]Listener),
		events:    make(chan grpcclient.Event, opts.EventQueueSize),
		done:      make(chan struct{}),
	}

	c.wg.Add(1)
	go c.dispatch()

	return c
}

// PostEvent queues ev for the listeners. It never blocks: when the queue is
// full the event is dropped with a warning.
func (c *Controller) PostEvent(ev grpcclient.Event) {
	select {
	case c.events <- ev:
	default:
		util.WithDevice(ev.DeviceID).Warnf("Event queue full, dropping %s", ev.Type)
	}
}

// AddListener registers l and returns a function that removes it.
func (c *Controller) AddListener(l Listener) (remove func()) {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

func (c *Controller) dispatch() {
	defer c.wg.Done()
	for {
		select {
		case ev := <-c.events:
			util.WithDevice(ev.DeviceID).Debugf("Session event %s", ev.Type)
			c.lmu.RLock()
			ls := make([]Listener, 0, len(c.listeners))
			for _, l := range c.listeners {
				ls = append(ls, l)
			}
			c.lmu.RUnlock()
			for _, l := range ls {
				l(ev)
			}
		case <-c.done:
			return
		}
	}
}

// CreateClient dials target and registers a client for it. It fails with
// util.ErrClientExists if the device already has one or is being created.
// ctx bounds the SSH dial and the election id allocation.
func (c *Controller) CreateClient(ctx context.Context, target Target) (*Client, error) {
	if err := c.reserve(target.DeviceID); err != nil {
		return nil, err
	}
	published := false
	defer func() {
		if !published {
			c.release(target.DeviceID)
		}
	}()

	log := util.WithDevice(target.DeviceID)
	m := &managed{}

	addr := target.Address
	if target.SSH != nil {
		tun, err := tunnel.New(ctx, *target.SSH, target.Address)
		if err != nil {
			return nil, fmt.Errorf("tunnel to %s: %w", target.DeviceID, err)
		}
		m.tunnel = tun
		addr = tun.LocalAddr()
		log.Debugf("Reaching %s through SSH tunnel %s", target.Address, addr)
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.opts.DialOptions...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		m.closeTunnel()
		return nil, fmt.Errorf("creating channel to %s: %w", target.DeviceID, err)
	}
	m.conn = conn

	m.client = NewClient(target.DeviceID, conn, Options{
		P4DeviceID: target.P4DeviceID,
		Persistent: target.Persistent,
		Timeouts:   target.Timeouts,
		Exec:       target.Exec,
		Resolver:   c.opts.Resolver,
		Sink:       c,
		OnError:    c.opts.OnError,
	})

	if c.opts.Store != nil {
		id, err := c.opts.Store.Next(ctx, target.DeviceID)
		if err != nil {
			m.close()
			return nil, err
		}
		m.client.SetElectionID(id)
	}

	if err := c.publish(target.DeviceID, m); err != nil {
		m.close()
		return nil, err
	}
	published = true

	conn.Connect()
	log.Infof("Created client for %s (%s)", target.DeviceID, target.Address)
	return m.client, nil
}

func (c *Controller) reserve(deviceID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.clients[deviceID]; ok || c.pending[deviceID] {
		return fmt.Errorf("%s: %w", deviceID, util.ErrClientExists)
	}
	c.pending[deviceID] = true
	return nil
}

func (c *Controller) release(deviceID string) {
	c.mu.Lock()
	delete(c.pending, deviceID)
	c.mu.Unlock()
}

func (c *Controller) publish(deviceID string, m *managed) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, deviceID)
	select {
	case <-c.done:
		return fmt.Errorf("%s: controller closed", deviceID)
	default:
	}
	c.clients[deviceID] = m
	return nil
}

// Client returns the client of deviceID.
func (c *Controller) Client(deviceID string) (*Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.clients[deviceID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", deviceID, util.ErrNoClient)
	}
	return m.client, nil
}

// ElectionRecord returns the last election id handed out for deviceID and
// who took it. It returns nil when no store is configured or no id was ever
// allocated.
func (c *Controller) ElectionRecord(ctx context.Context, deviceID string) (*election.Record, error) {
	if c.opts.Store == nil {
		return nil, nil
	}
	return c.opts.Store.Current(ctx, deviceID)
}

// Devices returns the ids of all managed devices, sorted.
func (c *Controller) Devices() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.clients))
	for id := range c.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RemoveClient shuts down the client of deviceID and closes its channel.
func (c *Controller) RemoveClient(deviceID string) error {
	c.mu.Lock()
	m, ok := c.clients[deviceID]
	delete(c.clients, deviceID)
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%s: %w", deviceID, util.ErrNoClient)
	}
	m.close()
	util.WithDevice(deviceID).Info("Removed client")
	return nil
}

// Close stops event dispatch and removes every client. Clients still being
// created are closed instead of registered.
func (c *Controller) Close() {
	c.closed.Do(func() {
		c.mu.Lock()
		close(c.done)
		c.mu.Unlock()
	})
	for _, id := range c.Devices() {
		c.RemoveClient(id)
	}
	c.wg.Wait()
}

func (m *managed) close() {
	<-m.client.Shutdown()
	if err := m.conn.Close(); err != nil {
		util.WithDevice(m.client.DeviceID()).Warnf("Closing channel: %v", err)
	}
	m.closeTunnel()
}

func (m *managed) closeTunnel() {
	if m.tunnel != nil {
		m.tunnel.Close()
	}
}
