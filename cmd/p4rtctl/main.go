// p4rtctl - P4Runtime pipeline configuration tool
//
// Pushes and verifies forwarding pipeline configs on P4Runtime devices
// listed in an inventory file, and follows their connectivity.
//
//	p4rtctl -i <inventory> -d <device> <command>
//
// Examples:
//
//	p4rtctl status                      # All inventory devices
//	p4rtctl -d leaf1 push               # Push the device's pipeconf
//	p4rtctl -d leaf1 verify             # Check the device runs its pipeconf
//	p4rtctl watch                       # Print session events until ^C
//	p4rtctl settings set redis_addr 10.0.0.5:6379
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/newtron-network/p4rt/pkg/election"
	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/inventory"
	"github.com/newtron-network/p4rt/pkg/p4runtime"
	"github.com/newtron-network/p4rt/pkg/settings"
	"github.com/newtron-network/p4rt/pkg/util"
	"github.com/newtron-network/p4rt/pkg/version"
)

var (
	// Global context flags
	inventoryPath string // -i, --inventory
	deviceName    string // -d, --device

	// Global option flags
	redisAddr      string
	connectTimeout time.Duration
	verbose        bool
	jsonLogs       bool

	// Global state
	userSettings *settings.Settings
	inv          *inventory.Inventory
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "p4rtctl",
	Short:             "P4Runtime pipeline configuration tool",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `p4rtctl pushes and verifies P4Runtime forwarding pipeline configs.

Devices and their pipeconfs come from an inventory file; -d selects one.

  p4rtctl -i <inventory> -d <device> <command>`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Set log level: quiet by default, verbose on -v
		if verbose {
			util.SetLogLevel("debug")
		} else {
			util.SetLogLevel("warn")
		}
		if jsonLogs {
			util.SetJSONFormat()
		}

		var err error
		userSettings, err = settings.Load()
		if err != nil {
			util.Warnf("Could not load settings: %v", err)
			userSettings = &settings.Settings{}
		}

		if isMetaCommand(cmd) {
			return nil
		}

		// Apply defaults from settings
		if inventoryPath == "" {
			inventoryPath = userSettings.DefaultInventory
		}
		if deviceName == "" {
			deviceName = userSettings.DefaultDevice
		}
		if redisAddr == "" {
			redisAddr = userSettings.RedisAddr
		}

		if inventoryPath == "" {
			return fmt.Errorf("inventory required: use -i <file> or 'p4rtctl settings set default_inventory <file>'")
		}
		inv, err = inventory.Load(inventoryPath)
		if err != nil {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&inventoryPath, "inventory", "i", "", "Inventory file")
	rootCmd.PersistentFlags().StringVarP(&deviceName, "device", "d", "", "Device name (default: all devices where allowed)")
	rootCmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address for shared election ids")
	rootCmd.PersistentFlags().DurationVar(&connectTimeout, "connect-timeout", 10*time.Second, "Time to wait for a device channel to open")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log in JSON format")

	rootCmd.AddGroup(
		&cobra.Group{ID: "device", Title: "Device Operations:"},
		&cobra.Group{ID: "meta", Title: "Configuration & Meta:"},
	)

	for _, cmd := range []*cobra.Command{statusCmd, pushCmd, verifyCmd, watchCmd} {
		cmd.GroupID = "device"
		rootCmd.AddCommand(cmd)
	}
	for _, cmd := range []*cobra.Command{settingsCmd, versionCmd} {
		cmd.GroupID = "meta"
		rootCmd.AddCommand(cmd)
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("p4rtctl dev build (use 'make build' for version info)")
		} else {
			fmt.Printf("p4rtctl %s\n", version.Info())
		}
	},
}

// isMetaCommand reports whether cmd runs without an inventory.
func isMetaCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == settingsCmd || c == versionCmd || c.Name() == "help" {
			return true
		}
	}
	return false
}

// selectedDevices returns the -d device, or every inventory device.
func selectedDevices() []string {
	if deviceName != "" {
		return []string{deviceName}
	}
	return inv.DeviceNames()
}

// requireDevice ensures a device is specified via -d flag
func requireDevice() (string, error) {
	if deviceName == "" {
		return "", fmt.Errorf("device required: use -d <device> flag")
	}
	if _, err := inv.Device(deviceName); err != nil {
		return "", err
	}
	return deviceName, nil
}

// newController builds a controller whose election ids come from Redis when
// an address is configured, or from process memory otherwise.
func newController(ctx context.Context) (*p4runtime.Controller, func(), error) {
	host, _ := os.Hostname()
	holder := "p4rtctl@" + host

	var store election.Store
	cleanup := func() {}
	if redisAddr != "" {
		rs := election.NewRedisStore(redisAddr, userSettings.RedisDB, holder)
		if err := rs.Connect(ctx); err != nil {
			rs.Close()
			return nil, nil, fmt.Errorf("connecting to election store at %s: %w", redisAddr, err)
		}
		store = rs
		cleanup = func() { rs.Close() }
	} else {
		store = election.NewMemoryStore(holder)
	}

	ctl := p4runtime.NewController(p4runtime.ControllerOptions{
		Store:       store,
		DialOptions: []grpc.DialOption{grpc.WithUserAgent(version.UserAgent())},
	})
	return ctl, func() {
		ctl.Close()
		cleanup()
	}, nil
}

// connect creates a client for device and waits until its channel opens or
// the connect timeout expires. A device that does not open is returned
// anyway so callers can report on it.
func connect(ctx context.Context, ctl *p4runtime.Controller, device string) (*p4runtime.Client, error) {
	target, err := inv.Target(device)
	if err != nil {
		return nil, err
	}
	if target.SSH != nil && target.SSH.Password == "" {
		pass, err := promptPassword(fmt.Sprintf("SSH password for %s@%s: ", target.SSH.User, target.SSH.Host))
		if err != nil {
			return nil, err
		}
		target.SSH.Password = pass
	}

	opened := make(chan struct{}, 1)
	remove := ctl.AddListener(func(ev grpcclient.Event) {
		if ev.DeviceID == device && ev.Type == grpcclient.ChannelOpen {
			select {
			case opened <- struct{}{}:
			default:
			}
		}
	})
	defer remove()

	client, err := ctl.CreateClient(ctx, target)
	if err != nil {
		return nil, err
	}
	if client.IsSessionOpen() {
		return client, nil
	}

	wait, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	select {
	case <-opened:
	case <-wait.Done():
		util.WithDevice(device).Warnf("Channel to %s not open after %s", target.Address, connectTimeout)
	}
	return client, nil
}
