package main

import (
	"github.com/spf13/cobra"

	"dimas/pkg/wire"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every agent answering under the selector",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			entities, err := queryAbout(ctx, sess, resolveBase(""), wire.Signal{Kind: wire.SignalAbout})
			if err != nil {
				return err
			}
			printAboutTable(entities)
			return nil
		},
	}
}
