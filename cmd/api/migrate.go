package main

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bluehex/server/internal/db"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), db.Migrate)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), db.MigrateDown)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd.Context(), db.MigrationStatus)
		},
	})
	return cmd
}

func withDatabase(ctx context.Context, fn func(ctx context.Context, database *sql.DB, log zerolog.Logger) error) error {
	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer d.Close()
	if d.db == nil {
		return errors.New("DATABASE_URL is required for migrations")
	}
	return fn(ctx, d.db, d.log)
}
