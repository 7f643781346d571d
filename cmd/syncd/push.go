package main

import (
	"github.com/spf13/cobra"
)

// createPushCommand pushes the current branch to a remote. Unlike the
// other pipelines, push never touches the vector store, so it calls the
// versioning client directly instead of going through Manager's
// per-repository mutex.
func (c *CLI) createPushCommand() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "push [remote]",
		Short: "Push the current branch to a versioning-engine remote",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			remote := "origin"
			if len(args) == 1 {
				remote = args[0]
			}
			if branch == "" {
				current, err := c.rc.VersioningClient.CurrentBranch(cmd.Context())
				if err != nil {
					return err
				}
				branch = current
			}
			result, err := c.rc.VersioningClient.Push(cmd.Context(), remote, branch)
			if err != nil {
				c.errColor.Fprintf(cmd.OutOrStdout(), "failed: %s\n", result.Message)
				return err
			}
			c.okColor.Fprintf(cmd.OutOrStdout(), "pushed %s to %s\n", branch, remote)
			return nil
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "branch to push (default: current branch)")
	return cmd
}
