package commands

import (
	"fmt"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/spf13/cobra"
)

func GetSignalsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "List known signals",
		Long:  `Lists every input and output signal visible on the admin bus.`,
		RunE:  runSignals,
	}
	cmd.Flags().DurationP("timeout", "t", 2*time.Second, "How long to listen before printing")
	return cmd
}

func runSignals(cmd *cobra.Command, args []string) error {
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

	for _, dir := range []model.Direction{model.DirectionOutput, model.DirectionInput} {
		cursor := dev.Signals(dir)
		for {
			sig, ok := cursor.Next()
			if !ok {
				break
			}
			fmt.Printf("%s\t%s\t%c[%d]\n", sig.FullName(), dir, sig.Type, sig.Length)
		}
		cursor.Release()
	}
	return nil
}
