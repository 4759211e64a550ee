package commands

import "github.com/spf13/cobra"

func GetRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sigmapctl",
		Short: "sigmapctl is a command line tool for inspecting a signal-mapping network.",
		Long: `The sigmapctl command joins the admin bus as an observer and lets you
list known devices and signals, watch changes, and create or remove
mappings between them.

Two environment variables are required:
- SIGMAP_IF: the network interface to bind to
- SIGMAP_GROUP: the multicast group name to join`,
		SilenceUsage: true,
	}

	cmd.AddCommand(
		GetDevicesCommand(),
		GetSignalsCommand(),
		GetMapCommand(),
		GetUnmapCommand(),
		GetMonitorCommand(),
		GetVersionCommand(),
	)

	return cmd
}
