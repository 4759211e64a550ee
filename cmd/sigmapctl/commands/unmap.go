package commands

import (
	"time"

	"github.com/spf13/cobra"
)

func GetUnmapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unmap <mapping-id>",
		Short: "Remove a mapping",
		Long:  `Broadcasts /unmap for the given mapping ID (as printed by "map").`,
		Args:  cobra.ExactArgs(1),
		RunE:  runUnmap,
	}
	return cmd
}

func runUnmap(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}
	dev, err := joinObserver(env)
	if err != nil {
		return err
	}
	defer dev.Free()

	settleFor(dev, 500*time.Millisecond)
	dev.Unmap(args[0])
	settleFor(dev, 200*time.Millisecond)
	return nil
}
