package main

import (
	"github.com/spf13/cobra"

	"github.com/bluehex/server/internal/notify"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions once and print how many were removed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := loadDeps(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			n, err := d.service(notify.Nop).SweepExpiredSessions(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("removed %d expired sessions\n", n)
			return nil
		},
	}
}
