package main

import (
	"github.com/spf13/cobra"
)

func (c *CLI) createCommitCommand() *cobra.Command {
	var replay bool
	cmd := &cobra.Command{
		Use:   "commit <message>",
		Short: "Stage pending vector-store changes into the versioning engine and commit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := c.rc.Manager.Commit(cmd.Context(), args[0], replay)
			return c.printSyncResult(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&replay, "replay", false, "replay the new commit back into the vector store after committing")
	return cmd
}
