package main

import (
	"github.com/spf13/cobra"

	"dvsync/internal/manifest"
)

func (c *CLI) createInitCommand() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "init <collection>",
		Short: "Bind a collection to the versioning engine and write the repository manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection := args[0]
			result := c.rc.Manager.Initialize(cmd.Context(), collection, message)
			if err := c.printSyncResult(cmd, result); err != nil {
				return err
			}
			if !manifest.Exists(c.manifestPath) {
				mf := manifest.New(c.rc.Config.Versioning.Database, c.rc.Config.Versioning.DefaultBranch)
				if err := mf.Save(c.manifestPath); err != nil {
					return err
				}
				c.infoColor.Fprintf(cmd.OutOrStdout(), "wrote manifest %s\n", c.manifestPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "initial sync", "commit message for the first commit")
	return cmd
}
