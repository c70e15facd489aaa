package main

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for the server CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bluehex",
		Short: "Bluehex session authentication server",
		Long: `Bluehex runs registration, login sessions and password resets
over HTTP, with email notifications delivered by a background worker.

Configuration is read from the environment and an optional .env file.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewWorkerCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}
