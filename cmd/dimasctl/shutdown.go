package main

import (
	"github.com/spf13/cobra"

	"dimas/pkg/wire"
)

func newShutdownCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown <target>",
		Short: "Ask the agent(s) matching target to shut down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			entities, err := queryAbout(ctx, sess, resolveBase(args[0]), wire.Signal{Kind: wire.SignalShutdown})
			if err != nil {
				return err
			}
			printAboutTable(entities)
			return nil
		},
	}
}
