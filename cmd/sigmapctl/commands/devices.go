package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func GetDevicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List known devices",
		Long:  `Lists every device visible on the admin bus, including this host's own.`,
		RunE:  runDevices,
	}
	cmd.Flags().DurationP("timeout", "t", 2*time.Second, "How long to listen before printing")
	return cmd
}

func runDevices(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}
	timeout, err := cmd.Flags().GetDuration("timeout")
	if err != nil {
		return err
	}

	dev, err := joinObserver(env)
	if err != nil {
		return err
	}
	defer dev.Free()

	settleFor(dev, timeout)

	cursor := dev.Devices()
	defer cursor.Release()
	for {
		d, ok := cursor.Next()
		if !ok {
			break
		}
		role := "mirror"
		if !d.Mirror {
			role = "local"
		}
		fmt.Printf("%s\t%s:%d\t[%s]\n", d.OrdinalName, d.Host, d.Port, role)
	}
	return nil
}
