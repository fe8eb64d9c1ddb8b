package main

import (
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/orthodesk/orthodesk/db/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Apply the embedded SQL migrations with goose.

Environment Variables Required:
  DATABASE_URL    - PostgreSQL connection string

Examples:
  orthoctl migrate up        # Apply all pending migrations
  orthoctl migrate down      # Roll back the latest migration
  orthoctl migrate status    # List applied and pending migrations`,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.AddCommand(
		migrationCommand("up", "Apply all pending migrations", goose.Up),
		migrationCommand("down", "Roll back the latest migration", goose.Down),
		migrationCommand("status", "Show migration status", goose.Status),
	)
}

func migrationCommand(use, short string, run func(db *sql.DB, dir string, opts ...goose.OptionsFunc) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pg, err := openDB()
			if err != nil {
				return err
			}
			defer pg.Close()

			goose.SetBaseFS(migrations.FS)
			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("set goose dialect: %w", err)
			}
			if err := run(pg, "."); err != nil {
				return fmt.Errorf("migrate %s: %w", use, err)
			}
			log.WithField("command", use).Info("Migration command completed")
			return nil
		},
	}
}
