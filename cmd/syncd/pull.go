package main

import (
	"github.com/spf13/cobra"
)

func (c *CLI) createPullCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "pull [remote]",
		Short: "Pull from remote and replay the new HEAD into the vector store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := "origin"
			if len(args) == 1 {
				remote = args[0]
			}
			result := c.rc.Manager.Pull(cmd.Context(), remote, force)
			return c.printSyncResult(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "pull even if the vector store has uncommitted local changes")
	return cmd
}
