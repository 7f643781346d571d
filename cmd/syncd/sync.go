package main

import (
	"github.com/spf13/cobra"

	"dvsync/pkg/types"
)

// createSyncCommand exposes the versioned-to-vector replay pipelines
// directly: a full rebuild from HEAD, or an incremental replay of only
// what changed since the vector store last saw it.
func (c *CLI) createSyncCommand() *cobra.Command {
	var full bool
	cmd := &cobra.Command{
		Use:   "sync <collection>",
		Short: "Replay the versioning engine's current HEAD into a collection's vector store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			var result *types.SyncResult
			if full {
				result = c.rc.Manager.FullSync(cmd.Context(), collection)
			} else {
				result = c.rc.Manager.IncrementalSync(cmd.Context(), collection)
			}
			return c.printSyncResult(cmd, result)
		},
	}
	cmd.Flags().BoolVar(&full, "full", false, "rebuild the collection from scratch instead of replaying only pending changes")
	return cmd
}
