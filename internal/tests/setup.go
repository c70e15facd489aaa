// Package tests holds integration tests that run the full server against a
// real PostgreSQL database. They skip when DATABASE_URL is not set.
package tests

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/bluehex/server/internal/db"
)

// RunMigrations applies the embedded migrations to database.
func RunMigrations(ctx context.Context, database *sql.DB) error {
	if err := db.Migrate(ctx, database, zerolog.Nop()); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// TruncateAuthTables truncates auth-related tables for a clean test state.
func TruncateAuthTables(ctx context.Context, database *sql.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE reset_tokens, sessions, identities CASCADE")
	if err != nil {
		return fmt.Errorf("truncate auth tables: %w", err)
	}
	return nil
}
