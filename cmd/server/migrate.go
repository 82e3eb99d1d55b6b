package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/bean-counter/internal/database"
	"github.com/iliyamo/bean-counter/internal/logging"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			return runMigrations(cmd.Context(), db)
		},
	}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	applied, err := database.Migrate(ctx, db)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logging.Info().Strs("applied", applied).Msg("migrations complete")
	return nil
}
