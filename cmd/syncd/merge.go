package main

import (
	"github.com/spf13/cobra"
)

func (c *CLI) createMergeCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "merge <ref>",
		Short: "Merge ref into the current branch and replay the merge commit into the vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := c.rc.Manager.Merge(cmd.Context(), args[0], force)
			return c.printSyncResult(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "merge even if the vector store has uncommitted local changes")
	return cmd
}
