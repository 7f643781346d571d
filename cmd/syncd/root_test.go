package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCLI_RegistersEverySubcommand(t *testing.T) {
	cli := NewCLI()

	want := []string{"init", "status", "commit", "pull", "push", "checkout", "merge", "reset", "sync"}
	var got []string
	for _, cmd := range cli.RootCmd.Commands() {
		got = append(got, cmd.Name())
	}
	assert.ElementsMatch(t, want, got)
}

func TestNewCLI_PersistentFlags(t *testing.T) {
	cli := NewCLI()

	assert.NotNil(t, cli.RootCmd.PersistentFlags().Lookup("manifest"))
	assert.NotNil(t, cli.RootCmd.PersistentFlags().Lookup("verbose"))
}
