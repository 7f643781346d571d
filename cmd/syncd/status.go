package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func (c *CLI) createStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current branch, HEAD commit, and whether the vector store has pending local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := c.rc.Manager.Status(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			c.infoColor.Fprintf(w, "branch:     %s\n", report.Branch)
			fmt.Fprintf(w, "head:       %s\n", report.HeadCommit)
			fmt.Fprintf(w, "collection: %s\n", report.FirstCollection)
			if report.HasPendingChanges {
				c.warnColor.Fprintln(w, "pending local changes in the vector store")
				fmt.Fprintf(w, "  new: %d  modified: %d  deleted: %d\n",
					len(report.LocalChanges.New), len(report.LocalChanges.Modified), len(report.LocalChanges.Deleted))
			} else {
				c.okColor.Fprintln(w, "clean")
			}
			return nil
		},
	}
}
