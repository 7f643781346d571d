package main

import (
	"github.com/spf13/cobra"
)

func (c *CLI) createResetCommand() *cobra.Command {
	var hard bool
	cmd := &cobra.Command{
		Use:   "reset <ref>",
		Short: "Discard the working directory back to ref",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := c.rc.Manager.Reset(cmd.Context(), args[0], hard)
			return c.printSyncResult(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&hard, "hard", false, "also rebuild the vector store from the new HEAD")
	return cmd
}
