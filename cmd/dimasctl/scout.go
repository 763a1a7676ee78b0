package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const scoutTimeout = 500 * time.Millisecond

// newScoutCommand lists agents currently holding a liveliness token under
// the selector. The original discovers peers through Zenoh's raw UDP
// scouting protocol, which has no NATS counterpart; this redeclares the
// same intent (what is out there, right now, without going through the
// admin protocol) as a liveliness-token listing instead, since every agent
// announces one under its own fully-qualified name.
func newScoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scout",
		Short: "List agents currently holding a liveliness token under the selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			names, err := sess.Liveliness().Get(ctx, resolveBase(""), scoutTimeout)
			if err != nil {
				return fmt.Errorf("scouting: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
			fmt.Fprintln(w, "NAME")
			for _, name := range names {
				fmt.Fprintln(w, name)
			}
			return w.Flush()
		},
	}
}
