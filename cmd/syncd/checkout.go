package main

import (
	"github.com/spf13/cobra"

	"dvsync/internal/syncmanager"
)

func (c *CLI) createCheckoutCommand() *cobra.Command {
	var createNew, preserveLocal bool
	cmd := &cobra.Command{
		Use:   "checkout <ref>",
		Short: "Switch the versioning engine to ref and reconcile the vector store to match",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result := c.rc.Manager.Checkout(cmd.Context(), syncmanager.CheckoutOptions{
				Ref:                  args[0],
				CreateNew:            createNew,
				PreserveLocalChanges: preserveLocal,
			})
			return c.printSyncResult(cmd, result)
		},
	}
	cmd.Flags().BoolVarP(&createNew, "branch", "b", false, "create ref as a new branch")
	cmd.Flags().BoolVar(&preserveLocal, "preserve-local", false, "carry uncommitted vector-store changes across the checkout")
	return cmd
}
