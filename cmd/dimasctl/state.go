package main

import (
	"github.com/spf13/cobra"

	"dimas/pkg/core"
	"dimas/pkg/wire"
)

func newSetStateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set-state <state>",
		Short: "Transition every agent under the selector to state, then report it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := core.ParseOperationState(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			sess, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer sess.Close()

			entities, err := queryAbout(ctx, sess, resolveBase(""), wire.Signal{Kind: wire.SignalState, Target: &target})
			if err != nil {
				return err
			}
			printAboutTable(entities)
			return nil
		},
	}
}
