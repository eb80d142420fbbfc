package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/p4rt/pkg/cli"
	"github.com/newtron-network/p4rt/pkg/grpcclient"
	"github.com/newtron-network/p4rt/pkg/p4runtime"
	"github.com/newtron-network/p4rt/pkg/util"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show reachability and pipeline state of devices",
	Long: `Connect to the selected device (or every inventory device) and report
whether it is reachable, whether the session is open, whether any
pipeline config is set, and which controller holds the latest election id.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ctl, done, err := newController(ctx)
		if err != nil {
			return err
		}
		defer done()

		t := cli.NewTable(os.Stdout, "DEVICE", "ADDRESS", "REACHABLE", "OPEN", "CONFIG SET", "ELECTION")
		for _, name := range selectedDevices() {
			dev, _ := inv.Device(name)
			client, err := connect(ctx, ctl, name)
			if err != nil {
				t.Row(name, dev.Address, cli.Red("error"), "-", "-", err.Error())
				continue
			}

			configSet := "-"
			if client.IsSessionOpen() {
				set, err := client.IsAnyPipelineConfigSet().Get(ctx)
				if err != nil {
					configSet = cli.Red(futureError(err))
				} else {
					configSet = cli.YesNo(set)
				}
			}
			t.Row(name, dev.Address,
				cli.YesNo(client.IsServerReachable()),
				cli.YesNo(client.IsSessionOpen()),
				configSet,
				electionHolder(ctx, ctl, name))
		}
		t.Flush()
		return nil
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the device's pipeconf",
	Long: `Set the forwarding pipeline config of the device to the pipeconf the
inventory assigns to it, then confirm it by reading back the cookie.

Examples:
  p4rtctl -d leaf1 push
  p4rtctl -d leaf1 push --no-verify`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireDevice()
		if err != nil {
			return err
		}
		pc, err := inv.Pipeconf(name)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ctl, done, err := newController(ctx)
		if err != nil {
			return err
		}
		defer done()

		client, err := connect(ctx, ctl, name)
		if err != nil {
			return err
		}

		label := fmt.Sprintf("Setting %s on %s", pc.ID(), name)
		ok, err := client.SetPipelineConfig(pc, pc.DeviceData()).Get(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", label, err)
		}
		fmt.Printf("%s %s\n", cli.DotPad(label, 50), result(ok))
		if !ok {
			return fmt.Errorf("device %s did not accept pipeconf %s (run with -v for details)", name, pc.ID())
		}

		if noVerify {
			return nil
		}
		return verify(ctx, client.IsPipelineConfigSet(pc, pc.DeviceData()), fmt.Sprintf("Verifying %s on %s", pc.ID(), name))
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that the device runs its pipeconf",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, err := requireDevice()
		if err != nil {
			return err
		}
		pc, err := inv.Pipeconf(name)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ctl, done, err := newController(ctx)
		if err != nil {
			return err
		}
		defer done()

		client, err := connect(ctx, ctl, name)
		if err != nil {
			return err
		}
		return verify(ctx, client.IsPipelineConfigSet(pc, pc.DeviceData()), fmt.Sprintf("Verifying %s on %s", pc.ID(), name))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print session events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ctl, done, err := newController(ctx)
		if err != nil {
			return err
		}
		defer done()

		ctl.AddListener(func(ev grpcclient.Event) {
			fmt.Printf("%s  %-12s %s\n", cli.Dim(time.Now().Format("15:04:05.000")), ev.DeviceID, cli.Event(ev.Type))
		})

		for _, name := range selectedDevices() {
			target, err := inv.Target(name)
			if err != nil {
				return err
			}
			if _, err := ctl.CreateClient(ctx, target); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", cli.Bold("watching"), name)
		}

		<-ctx.Done()
		return nil
	},
}

var noVerify bool

func init() {
	pushCmd.Flags().BoolVar(&noVerify, "no-verify", false, "Skip reading back the pipeline cookie")
}

func verify(ctx context.Context, f *grpcclient.Future[bool], label string) error {
	ok, err := f.Get(ctx)
	if err != nil {
		fmt.Printf("%s %s\n", cli.DotPad(label, 50), cli.Red(futureError(err)))
		return fmt.Errorf("%s: %w", label, err)
	}
	fmt.Printf("%s %s\n", cli.DotPad(label, 50), result(ok))
	if !ok {
		return fmt.Errorf("pipeline config does not match")
	}
	return nil
}

// electionHolder formats the last election id of device and its holder.
func electionHolder(ctx context.Context, ctl *p4runtime.Controller, device string) string {
	rec, err := ctl.ElectionRecord(ctx, device)
	if err != nil {
		return cli.Red(err.Error())
	}
	if rec == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s", strconv.FormatUint(rec.ID.GetLow(), 10), cli.Dim("("+rec.Holder+")"))
}

// futureError shortens failures of the device session itself; other errors
// are shown in full.
func futureError(err error) string {
	if util.IsStructural(err) {
		return "session unavailable"
	}
	return err.Error()
}

func result(ok bool) string {
	if ok {
		return cli.Green("ok")
	}
	return cli.Red("FAILED")
}
