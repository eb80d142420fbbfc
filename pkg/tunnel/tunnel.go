// Package tunnel forwards a local TCP port to a device's gRPC endpoint
// through an SSH connection, for devices whose P4Runtime port is only
// reachable from the management host.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"golang.org/x/crypto/ssh"

	"github.com/newtron-network/p4rt/pkg/util"
)

// DefaultPort is the SSH port used when Config.Port is zero.
const DefaultPort = 22

// Config describes the SSH hop.
type Config struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	User     string `yaml:"user" json:"user"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
}

// Addr returns host:port of the SSH server.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Tunnel forwards connections on a local port to a remote address as seen
// from the SSH host.
type Tunnel struct {
	localAddr  string // "127.0.0.1:<port>"
	remoteAddr string
	sshClient  *ssh.Client
	listener   net.Listener
	done       chan struct{}
	wg         sync.WaitGroup
}

// New dials the SSH server and opens a local listener on a random port.
// Connections to the local port are forwarded to remoteAddr. Cancelling ctx
// aborts the dial and the SSH handshake.
func New(ctx context.Context, cfg Config, remoteAddr string) (*Tunnel, error) {
	config := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(cfg.Password),
		},
		// Host keys are not verified.
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
	}

	sshClient, err := dial(ctx, cfg.Addr(), config)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w", cfg.Addr(), err)
	}

	t, err := newTunnel(sshClient, remoteAddr)
	if err != nil {
		sshClient.Close()
		return nil, err
	}
	return t, nil
}

func dial(ctx context.Context, addr string, config *ssh.ClientConfig) (*ssh.Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	// The handshake has no context of its own; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if !stop() {
		if err == nil {
			c.Close()
		}
		return nil, ctx.Err()
	}
	if err != nil {
		conn.Close()
		return nil, err
	}
	return ssh.NewClient(c, chans, reqs), nil
}

func newTunnel(sshClient *ssh.Client, remoteAddr string) (*Tunnel, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("local listen: %w", err)
	}

	t := &Tunnel{
		localAddr:  listener.Addr().String(),
		remoteAddr: remoteAddr,
		sshClient:  sshClient,
		listener:   listener,
		done:       make(chan struct{}),
	}

	t.wg.Add(1)
	go t.acceptLoop()

	return t, nil
}

// LocalAddr returns the local address (e.g. "127.0.0.1:54321") that
// forwards to the remote address.
func (t *Tunnel) LocalAddr() string {
	return t.localAddr
}

// RemoteAddr returns the forwarded address as seen from the SSH host.
func (t *Tunnel) RemoteAddr() string {
	return t.remoteAddr
}

// Close stops the listener, closes the SSH connection, and waits for
// all forwarding goroutines to finish.
func (t *Tunnel) Close() error {
	close(t.done)
	t.listener.Close()
	err := t.sshClient.Close()
	t.wg.Wait()
	return err
}

func (t *Tunnel) acceptLoop() {
	defer t.wg.Done()
	for {
		local, err := t.listener.Accept()
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		t.wg.Add(1)
		go t.forward(local)
	}
}

func (t *Tunnel) forward(local net.Conn) {
	defer t.wg.Done()
	defer local.Close()

	remote, err := t.sshClient.Dial("tcp", t.remoteAddr)
	if err != nil {
		util.WithField("remote", t.remoteAddr).Warnf("SSH forward: %v", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}
