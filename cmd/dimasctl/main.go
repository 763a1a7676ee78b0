// Command dimasctl is the control-plane CLI for a dimas deployment: it
// lists the agents answering under a selector, pings one, lists the live
// agents' liveliness tokens once, forces a state transition, or asks one to shut down (C17).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var selector string

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dimasctl:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "dimasctl",
		Short:         "Control-plane CLI for a dimas deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&selector, "selector", "s", "",
		"base selector every subcommand's target is resolved under (default: every agent)")
	root.AddCommand(
		newListCommand(),
		newPingCommand(),
		newScoutCommand(),
		newSetStateCommand(),
		newShutdownCommand(),
		newVersionCommand(),
	)
	return root
}
