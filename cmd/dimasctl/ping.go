package main

import (
	"time"

	"github.com/spf13/cobra"
)

func newPingCommand() *cobra.Command {
	var count uint8
	cmd := &cobra.Command{
		Use:   "ping <target>",
		Short: "Round-trip ping the agent(s) matching target",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			base := resolveBase(args[0])
			for i := uint8(0); i < count; i++ {
				entities, err := queryPing(ctx, sess, base)
				if err != nil {
					return err
				}
				printPingTable(entities)
				if i+1 < count {
					time.Sleep(time.Second)
				}
			}
			return nil
		},
	}
	cmd.Flags().Uint8VarP(&count, "count", "c", 1, "number of pings to send")
	return cmd
}
