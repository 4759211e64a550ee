package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/sigmap/sigmap/internal/model"
	"github.com/spf13/cobra"
)

func GetMapCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "map <src_device/signal> <dst_device/signal>",
		Short: "Create a mapping between two signals",
		Long: `Creates a mapping from a source signal to a destination signal and waits
for the negotiation to reach "ready" or the timeout to expire.`,
		RunE: runMap,
		Args: cobra.ExactArgs(2),
	}

	cmd.Flags().String("mode", "bypass", "Mapping mode: none, raw, bypass, linear, expression, calibrate")
	cmd.Flags().String("expr", "", "Expression (mode=expression)")
	cmd.Flags().String("bound-min", "none", "Boundary action below the lower bound: none, mute, clamp, fold, wrap")
	cmd.Flags().String("bound-max", "none", "Boundary action above the upper bound: none, mute, clamp, fold, wrap")
	cmd.Flags().DurationP("timeout", "t", 3*time.Second, "How long to wait for negotiation to settle")

	return cmd
}

func runMap(cmd *cobra.Command, args []string) error {
	env, err := GetEnvironment()
	if err != nil {
		return err
	}
	modeStr, _ := cmd.Flags().GetString("mode")
	expr, _ := cmd.Flags().GetString("expr")
	boundMinStr, _ := cmd.Flags().GetString("bound-min")
	boundMaxStr, _ := cmd.Flags().GetString("bound-max")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	mode, err := model.ParseMode(modeStr)
	if err != nil {
		return err
	}
	boundMin, err := model.ParseBoundAction(boundMinStr)
	if err != nil {
		return err
	}
	boundMax, err := model.ParseBoundAction(boundMaxStr)
	if err != nil {
		return err
	}

	src, err := parseSlotArg(args[0])
	if err != nil {
		return err
	}
	dst, err := parseSlotArg(args[1])
	if err != nil {
		return err
	}

	dev, err := joinObserver(env)
	if err != nil {
		return err
	}
	defer dev.Free()
	settleFor(dev, timeout/2)

	m := &model.Mapping{
		ID:         fmt.Sprintf("%s->%s", src.FullName(), dst.FullName()),
		SrcSlots:   []model.Slot{src},
		DstSlot:    dst,
		Mode:       mode,
		Expression: expr,
		BoundMin:   boundMin,
		BoundMax:   boundMax,
	}
	dev.Propose(m)

	deadline := time.Now().Add(timeout / 2)
	for time.Now().Before(deadline) && m.Status != model.StatusReady {
		dev.Poll(50 * time.Millisecond)
	}

	if m.Status == model.StatusReady {
		fmt.Printf("%s: ready\n", m.ID)
		return nil
	}
	return fmt.Errorf("%s: negotiation did not complete within %s", m.ID, timeout)
}

func parseSlotArg(arg string) (model.Slot, error) {
	i := strings.LastIndexByte(arg, '/')
	if i < 0 {
		return model.Slot{}, fmt.Errorf("%q must be in the form device/signal", arg)
	}
	return model.Slot{DeviceName: arg[:i], SignalName: arg[i+1:]}, nil
}
