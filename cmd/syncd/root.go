// Package main is the syncd command-line entry point: a thin cobra
// dispatcher that wires one RepositoryContext and calls into its
// Manager's pipelines.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"dvsync/internal/config"
	"dvsync/internal/di"
	"dvsync/internal/logging"
)

// CLI holds the dispatcher's root command and the RepositoryContext
// shared by every subcommand's RunE.
type CLI struct {
	RootCmd *cobra.Command
	rc      *di.RepositoryContext

	manifestPath string
	verbose      bool

	okColor   *color.Color
	warnColor *color.Color
	errColor  *color.Color
	infoColor *color.Color
}

// NewCLI builds the command tree. The RepositoryContext itself is built
// lazily in PersistentPreRunE so that `--help` and flag-parsing errors
// never require a live backend connection.
func NewCLI() *CLI {
	c := &CLI{
		okColor:   color.New(color.FgGreen),
		warnColor: color.New(color.FgYellow),
		errColor:  color.New(color.FgRed),
		infoColor: color.New(color.FgCyan),
	}
	c.setupRootCommand()
	c.setupCommands()
	return c
}

func (c *CLI) setupRootCommand() {
	c.RootCmd = &cobra.Command{
		Use:           "syncd",
		Short:         "Bidirectional sync between a vector store and a SQL-versioned repository",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			if c.verbose {
				logging.SetComponentLevel(logging.DEBUG)
			}
			cfg, err := config.LoadConfig()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			if c.manifestPath == "" {
				c.manifestPath = cfg.Manifest.Path
			}
			rc, err := di.Build(cfg, c.manifestPath)
			if err != nil {
				return fmt.Errorf("wire repository context: %w", err)
			}
			c.rc = rc
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.rc == nil {
				return nil
			}
			return c.rc.Close()
		},
	}
	c.RootCmd.PersistentFlags().StringVar(&c.manifestPath, "manifest", "", "path to the repository manifest (default from config)")
	c.RootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")
}

func (c *CLI) setupCommands() {
	c.RootCmd.AddCommand(
		c.createInitCommand(),
		c.createStatusCommand(),
		c.createCommitCommand(),
		c.createPullCommand(),
		c.createPushCommand(),
		c.createCheckoutCommand(),
		c.createMergeCommand(),
		c.createResetCommand(),
		c.createSyncCommand(),
	)
}

// Execute runs the command tree.
func (c *CLI) Execute() error {
	return c.RootCmd.Execute()
}

func main() {
	cli := NewCLI()
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(1)
	}
}
