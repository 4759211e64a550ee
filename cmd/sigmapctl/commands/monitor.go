package commands

import (
	"fmt"
	"time"

	"github.com/sigmap/sigmap/device"
	"github.com/sigmap/sigmap/internal/model"
	"github.com/sigmap/sigmap/internal/store"
	"github.com/spf13/cobra"
)

func GetMonitorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Stream admin-bus changes as they happen",
		Long: `Subscribes to the admin bus and prints every device, signal, link, and
mapping change for the given duration (spec §6's /subscribe).`,
		RunE: runMonitor,
	}
	cmd.Flags().DurationP("duration", "d", 10*time.Second, "How long to watch before exiting")
	cmd.Flags().Duration("lease", 30*time.Second, "Subscription lease requested from peers")
	return cmd
}

func runMonitor(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}
	duration, err := cmd.Flags().GetDuration("duration")
	if err != nil {
		return err
	}
	lease, err := cmd.Flags().GetDuration("lease")
	if err != nil {
		return err
	}

	dev, err := joinObserver(env)
	if err != nil {
		return err
	}
	defer dev.Free()

	settleFor(dev, 500*time.Millisecond)

	dev.OnDeviceChange(func(d *model.Device, ev store.Event, _ any) {
		fmt.Printf("device\t%s\t%s:%d\t%s\n", d.OrdinalName, d.Host, d.Port, ev)
	}, nil)
	dev.OnSignalChange(func(s *model.Signal, ev store.Event, _ any) {
		fmt.Printf("signal\t%s\t%s\t%s\n", s.FullName(), s.Direction, ev)
	}, nil)
	dev.OnLinkChange(func(l *model.Link, ev store.Event, _ any) {
		fmt.Printf("link\t%s -> %s\t%s\n", l.SrcDevice, l.DstDevice, ev)
	}, nil)
	dev.OnMappingChange(func(m *model.Mapping, ev store.Event, _ any) {
		fmt.Printf("mapping\t%s\t%s\t%s\n", m.ID, m.Status, ev)
	}, nil)

	dev.Subscribe(device.SubscribeAll, lease)
	settleFor(dev, duration)
	return nil
}
