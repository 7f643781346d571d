package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dvsync/pkg/types"
)

// printSyncResult renders a pipeline's terminal SyncResult to the
// command's output stream, colorized by status.
func (c *CLI) printSyncResult(cmd *cobra.Command, result *types.SyncResult) error {
	w := cmd.OutOrStdout()
	switch result.Status {
	case types.StatusFailed:
		c.errColor.Fprintf(w, "failed: %s\n", result.Error)
		return fmt.Errorf("%s", result.Error)
	case types.StatusNoChanges:
		c.infoColor.Fprintln(w, "no changes")
	case types.StatusLocalChangesExist:
		c.warnColor.Fprintln(w, "local changes exist, refusing to proceed without --force")
		if result.LocalChanges != nil {
			fmt.Fprintf(w, "  new: %d  modified: %d  deleted: %d\n",
				len(result.LocalChanges.New), len(result.LocalChanges.Modified), len(result.LocalChanges.Deleted))
		}
	case types.StatusConflicts:
		c.warnColor.Fprintf(w, "merge stopped with %d conflict(s)\n", len(result.Conflicts))
		for _, conflict := range result.Conflicts {
			fmt.Fprintf(w, "  %s: ours=%q theirs=%q\n", conflict.DocID, conflict.Ours, conflict.Theirs)
		}
	case types.StatusCompleted:
		c.okColor.Fprintf(w, "completed (%s)\n", result.Direction)
		fmt.Fprintf(w, "  added: %d  modified: %d  deleted: %d  chunks: %d\n",
			result.Added, result.Modified, result.Deleted, result.ChunksProcessed)
		if result.CommitHash != "" {
			fmt.Fprintf(w, "  commit: %s\n", result.CommitHash)
		}
		if result.StagedFromVector {
			fmt.Fprintln(w, "  staged pending vector-store changes before committing")
		}
	default:
		fmt.Fprintf(w, "status: %s\n", result.Status)
	}
	return nil
}
