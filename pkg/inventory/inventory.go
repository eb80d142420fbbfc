// Package inventory loads the device inventory: how to reach each P4Runtime
// device, which pipeconf it runs, and per-device execution limits.
package inventory

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/p4runtime"
	"github.com/newtron-network/p4rt/pkg/pipeconf"
	"github.com/newtron-network/p4rt/pkg/tunnel"
)

// Inventory is the parsed inventory file.
type Inventory struct {
	Defaults  Defaults                  `yaml:"defaults"`
	Pipeconfs map[string]*PipeconfEntry `yaml:"pipeconfs"`
	Devices   map[string]*Device        `yaml:"devices"`

	dir string
}

// Defaults apply to every device that does not set the field itself.
type Defaults struct {
	Persistent    *bool          `yaml:"persistent,omitempty"`
	ShortTimeout  time.Duration  `yaml:"short_timeout,omitempty"`
	LongTimeout   time.Duration  `yaml:"long_timeout,omitempty"`
	LockTimeout   time.Duration  `yaml:"lock_timeout,omitempty"`
	ShutdownGrace time.Duration  `yaml:"shutdown_grace,omitempty"`
	PoolSize      int            `yaml:"pool_size,omitempty"`
	SSH           *tunnel.Config `yaml:"ssh,omitempty"`
}

// PipeconfEntry locates a pipeconf's artifacts. Relative paths are taken
// from the inventory file's directory.
type PipeconfEntry struct {
	P4Info      string `yaml:"p4info"`
	DeviceData  string `yaml:"device_data,omitempty"`
	Fingerprint uint64 `yaml:"fingerprint,omitempty"`
}

// Device is one inventory device.
type Device struct {
	Address       string         `yaml:"address"`
	P4DeviceID    uint64         `yaml:"p4_device_id"`
	Pipeconf      string         `yaml:"pipeconf,omitempty"`
	Persistent    *bool          `yaml:"persistent,omitempty"`
	ShortTimeout  time.Duration  `yaml:"short_timeout,omitempty"`
	LongTimeout   time.Duration  `yaml:"long_timeout,omitempty"`
	LockTimeout   time.Duration  `yaml:"lock_timeout,omitempty"`
	ShutdownGrace time.Duration  `yaml:"shutdown_grace,omitempty"`
	PoolSize      int            `yaml:"pool_size,omitempty"`
	SSH           *tunnel.Config `yaml:"ssh,omitempty"`
}

// Load reads and validates an inventory file, then fills every device
// field left unset from the defaults section and the built-in defaults.
func Load(path string) (*Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading inventory file: %w", err)
	}

	inv, err := Parse(data)
	if err != nil {
		return nil, err
	}
	inv.dir = filepath.Dir(path)
	return inv, nil
}

// Parse decodes inventory YAML. Unknown keys are rejected.
func Parse(data []byte) (*Inventory, error) {
	var inv Inventory
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&inv); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing inventory YAML: %w", err)
	}

	if err := inv.validate(); err != nil {
		return nil, fmt.Errorf("validating inventory: %w", err)
	}
	inv.applyDefaults()
	return &inv, nil
}

func (inv *Inventory) validate() error {
	if len(inv.Devices) == 0 {
		return fmt.Errorf("at least one device is required")
	}
	for name, pc := range inv.Pipeconfs {
		if pc == nil || pc.P4Info == "" {
			return fmt.Errorf("pipeconf %s: p4info is required", name)
		}
	}
	for name, d := range inv.Devices {
		if d == nil {
			return fmt.Errorf("device %s: empty definition", name)
		}
		if d.Address == "" {
			return fmt.Errorf("device %s: address is required", name)
		}
		if _, _, err := net.SplitHostPort(d.Address); err != nil {
			return fmt.Errorf("device %s: address %q must be host:port", name, d.Address)
		}
		if d.Pipeconf != "" {
			if _, ok := inv.Pipeconfs[d.Pipeconf]; !ok {
				return fmt.Errorf("device %s: references undefined pipeconf %q", name, d.Pipeconf)
			}
		}
		if d.PoolSize < 0 {
			return fmt.Errorf("device %s: pool_size must be positive", name)
		}
	}
	return nil
}

func (inv *Inventory) applyDefaults() {
	def := inv.Defaults
	persistent := true
	if def.Persistent != nil {
		persistent = *def.Persistent
	}

	for _, d := range inv.Devices {
		if d.Persistent == nil {
			p := persistent
			d.Persistent = &p
		}
		d.ShortTimeout = firstDuration(d.ShortTimeout, def.ShortTimeout, p4runtime.DefaultShortTimeout)
		d.LongTimeout = firstDuration(d.LongTimeout, def.LongTimeout, p4runtime.DefaultLongTimeout)
		d.LockTimeout = firstDuration(d.LockTimeout, def.LockTimeout, grpcclient.DefaultLockTimeout)
		d.ShutdownGrace = firstDuration(d.ShutdownGrace, def.ShutdownGrace, grpcclient.DefaultShutdownGrace)
		if d.PoolSize == 0 {
			d.PoolSize = def.PoolSize
		}
		if d.PoolSize == 0 {
			d.PoolSize = grpcclient.DefaultPoolSize
		}

		if d.SSH != nil || def.SSH != nil {
			d.SSH = mergeSSH(d.SSH, def.SSH, d.Address)
		}
	}
}

func firstDuration(ds ...time.Duration) time.Duration {
	for _, d := range ds {
		if d > 0 {
			return d
		}
	}
	return 0
}

// mergeSSH fills unset fields of the device's SSH hop from the defaults.
// A missing host is taken from the device address.
func mergeSSH(dev, def *tunnel.Config, address string) *tunnel.Config {
	out := tunnel.Config{}
	if def != nil {
		out = *def
	}
	if dev != nil {
		if dev.Host != "" {
			out.Host = dev.Host
		}
		if dev.Port != 0 {
			out.Port = dev.Port
		}
		if dev.User != "" {
			out.User = dev.User
		}
		if dev.Password != "" {
			out.Password = dev.Password
		}
	}
	if out.Host == "" {
		out.Host, _, _ = net.SplitHostPort(address)
	}
	return &out
}

// DeviceNames returns all device names, sorted.
func (inv *Inventory) DeviceNames() []string {
	names := make([]string, 0, len(inv.Devices))
	for name := range inv.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Device returns the named device.
func (inv *Inventory) Device(name string) (*Device, error) {
	d, ok := inv.Devices[name]
	if !ok {
		return nil, fmt.Errorf("device %q not found in inventory", name)
	}
	return d, nil
}

// Target returns the connection parameters of the named device.
func (inv *Inventory) Target(name string) (p4runtime.Target, error) {
	d, err := inv.Device(name)
	if err != nil {
		return p4runtime.Target{}, err
	}
	return p4runtime.Target{
		DeviceID:   name,
		Address:    d.Address,
		P4DeviceID: d.P4DeviceID,
		Persistent: d.Persistent != nil && *d.Persistent,
		SSH:        d.SSH,
		Timeouts:   p4runtime.Timeouts{Short: d.ShortTimeout, Long: d.LongTimeout},
		Exec: grpcclient.Config{
			PoolSize:      d.PoolSize,
			LockTimeout:   d.LockTimeout,
			ShutdownGrace: d.ShutdownGrace,
		},
	}, nil
}

// Pipeconf loads the pipeconf assigned to the named device.
func (inv *Inventory) Pipeconf(device string) (*pipeconf.Artifact, error) {
	d, err := inv.Device(device)
	if err != nil {
		return nil, err
	}
	if d.Pipeconf == "" {
		return nil, fmt.Errorf("device %s has no pipeconf", device)
	}
	pc := inv.Pipeconfs[d.Pipeconf]

	dataPath := ""
	if pc.DeviceData != "" {
		dataPath = inv.resolve(pc.DeviceData)
	}
	return pipeconf.Load(d.Pipeconf, inv.resolve(pc.P4Info), dataPath, pc.Fingerprint)
}

func (inv *Inventory) resolve(path string) string {
	if filepath.IsAbs(path) || inv.dir == "" {
		return path
	}
	return filepath.Join(inv.dir, path)
}
